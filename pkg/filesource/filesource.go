// Package filesource implements the FileSource capability: enumerate remote
// documents of allowed extensions and download one to a local temp path.
// Grounded on the original RemoteFileSource.java hierarchy
// (LocalFileSource/SftpFileSource/FtpFileSource + RemoteFileSourceConfig's
// protocol-switched factory).
package filesource

import (
	"context"
	"fmt"
	"strings"

	"github.com/pixelgardenlabs/docsync/pkg/util"
)

// RemoteFileInfo is a snapshot of a source entry at listing time.
type RemoteFileInfo struct {
	Name               string
	LastModifiedMillis int64
}

// FileSource enumerates and downloads documents from wherever they live.
// Transport implementations are external collaborators (spec.md §1); the
// engine only depends on this interface.
type FileSource interface {
	// List returns entries whose name ends, case-insensitively, with one of
	// AllowedExtensions() and which are not directories. A listing failure
	// is reported as an empty slice plus a logged, non-fatal error — the
	// engine must not delete known files just because a listing failed.
	List(ctx context.Context) ([]RemoteFileInfo, error)
	// Download copies name to a local temporary path and returns it. The
	// caller owns the returned path and must delete it on every exit path.
	Download(ctx context.Context, name string) (localPath string, err error)
	// AllowedExtensions returns the configured, case-insensitive suffix
	// filter applied by List.
	AllowedExtensions() []string
}

// Config selects and parameterizes a concrete FileSource, mirroring
// RemoteFileSourceConfig.java's Spring @Bean factory.
type Config struct {
	Protocol          string // "local", "sftp", or "ftp"
	Host              string
	Port              int
	Username          string
	Password          string
	PrivateKeyPath    string
	Directory         string
	AllowedExtensions []string
}

// New constructs a FileSource for cfg.Protocol, the Go equivalent of
// RemoteFileSourceConfig.remoteFileSource's protocol switch.
func New(cfg Config) (FileSource, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "local":
		return NewLocal(cfg.Directory, cfg.AllowedExtensions), nil
	case "sftp":
		return NewSFTP(cfg), nil
	case "ftp":
		return NewFTP(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported file source protocol %q: use 'local', 'sftp', or 'ftp'", cfg.Protocol)
	}
}

func hasAllowedExtension(name string, extensions []string) bool {
	return util.HasAllowedExtension(name, extensions)
}

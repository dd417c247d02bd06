package filesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// Local reads documents directly off a local directory. Grounded on
// LocalFileSource.java.
type Local struct {
	directory  string
	extensions []string
}

// NewLocal constructs a Local file source rooted at directory.
func NewLocal(directory string, extensions []string) *Local {
	return &Local{directory: directory, extensions: extensions}
}

func (l *Local) AllowedExtensions() []string { return l.extensions }

func (l *Local) List(_ context.Context) ([]RemoteFileInfo, error) {
	entries, err := os.ReadDir(l.directory)
	if err != nil {
		return nil, fmt.Errorf("local listing failed for %s: %w", l.directory, err)
	}

	var result []RemoteFileInfo
	for _, entry := range entries {
		if entry.IsDir() || !hasAllowedExtension(entry.Name(), l.extensions) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			plog.Warn("could not stat local file", "name", entry.Name(), "error", err)
			continue
		}
		result = append(result, RemoteFileInfo{
			Name:               entry.Name(),
			LastModifiedMillis: info.ModTime().UnixMilli(),
		})
	}
	plog.Debug("local listed files", "count", len(result), "directory", l.directory)
	return result, nil
}

func (l *Local) Download(_ context.Context, name string) (string, error) {
	src, err := os.Open(filepath.Join(l.directory, name))
	if err != nil {
		return "", fmt.Errorf("local copy failed for %s: %w", name, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "docsync-*-"+name)
	if err != nil {
		return "", fmt.Errorf("local copy failed for %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("local copy failed for %s: %w", name, err)
	}

	plog.Debug("local copied file", "name", name, "tempPath", dst.Name())
	return dst.Name(), nil
}

var _ FileSource = (*Local)(nil)

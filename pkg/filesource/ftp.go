package filesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// FTP reads documents from a remote directory over plain FTP. Grounded on
// the original's FtpFileSource counterpart to SftpFileSource.java: connect,
// list or retrieve, disconnect, per call.
type FTP struct {
	host, username, password, directory string
	port                                int
	extensions                          []string
}

// NewFTP constructs an FTP file source from cfg.
func NewFTP(cfg Config) *FTP {
	return &FTP{
		host:       cfg.Host,
		port:       cfg.Port,
		username:   cfg.Username,
		password:   cfg.Password,
		directory:  cfg.Directory,
		extensions: cfg.AllowedExtensions,
	}
}

func (f *FTP) AllowedExtensions() []string { return f.extensions }

func (f *FTP) connect() (*ftp.ServerConn, error) {
	addr := f.host + ":" + strconv.Itoa(f.port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp connection failed: %w", err)
	}
	if err := conn.Login(f.username, f.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login failed: %w", err)
	}
	return conn, nil
}

func (f *FTP) List(_ context.Context) ([]RemoteFileInfo, error) {
	conn, err := f.connect()
	if err != nil {
		return nil, fmt.Errorf("ftp listing failed: %w", err)
	}
	defer conn.Quit()

	entries, err := conn.List(f.directory)
	if err != nil {
		return nil, fmt.Errorf("ftp listing failed for %s: %w", f.directory, err)
	}

	var result []RemoteFileInfo
	for _, entry := range entries {
		if entry.Type == ftp.EntryTypeFolder || !hasAllowedExtension(entry.Name, f.extensions) {
			continue
		}
		result = append(result, RemoteFileInfo{
			Name:               entry.Name,
			LastModifiedMillis: entry.Time.UnixMilli(),
		})
	}
	plog.Debug("ftp listed files", "count", len(result), "directory", f.directory)
	return result, nil
}

func (f *FTP) Download(_ context.Context, name string) (string, error) {
	conn, err := f.connect()
	if err != nil {
		return "", fmt.Errorf("ftp download failed for %s: %w", name, err)
	}
	defer conn.Quit()

	remotePath := f.directory + "/" + name
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return "", fmt.Errorf("ftp download failed for %s: %w", name, err)
	}
	defer resp.Close()

	localFile, err := os.CreateTemp("", "docsync-*-"+name)
	if err != nil {
		return "", fmt.Errorf("ftp download failed for %s: %w", name, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, resp); err != nil {
		os.Remove(localFile.Name())
		return "", fmt.Errorf("ftp download failed for %s: %w", name, err)
	}

	plog.Debug("ftp downloaded file", "name", name, "tempPath", localFile.Name())
	return localFile.Name(), nil
}

var _ FileSource = (*FTP)(nil)

package filesource

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// SFTP reads documents from a remote directory over SFTP. Grounded on
// SftpFileSource.java's session/channel lifecycle (connect, list or
// download, disconnect), reimplemented with a session opened per call
// rather than held open across the daemon's lifetime — matching the
// original's own per-call connect/disconnect pattern.
type SFTP struct {
	host, username, password, privateKeyPath, directory string
	port                                                int
	extensions                                          []string
}

// NewSFTP constructs an SFTP file source from cfg.
func NewSFTP(cfg Config) *SFTP {
	return &SFTP{
		host:           cfg.Host,
		port:           cfg.Port,
		username:       cfg.Username,
		password:       cfg.Password,
		privateKeyPath: cfg.PrivateKeyPath,
		directory:      cfg.Directory,
		extensions:     cfg.AllowedExtensions,
	}
}

func (s *SFTP) AllowedExtensions() []string { return s.extensions }

func (s *SFTP) connect() (*ssh.Client, *sftp.Client, error) {
	authMethods, err := s.authMethods()
	if err != nil {
		return nil, nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            s.username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%s", s.host, strconv.Itoa(s.port))
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("sftp connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("sftp connection failed: %w", err)
	}

	return sshClient, sftpClient, nil
}

func (s *SFTP) authMethods() ([]ssh.AuthMethod, error) {
	if s.privateKeyPath != "" {
		key, err := os.ReadFile(s.privateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key %s: %w", s.privateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key %s: %w", s.privateKeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(s.password)}, nil
}

func (s *SFTP) List(_ context.Context) ([]RemoteFileInfo, error) {
	sshClient, sftpClient, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("sftp listing failed: %w", err)
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	entries, err := sftpClient.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("sftp listing failed for %s: %w", s.directory, err)
	}

	var result []RemoteFileInfo
	for _, entry := range entries {
		if entry.IsDir() || !hasAllowedExtension(entry.Name(), s.extensions) {
			continue
		}
		result = append(result, RemoteFileInfo{
			Name:               entry.Name(),
			LastModifiedMillis: entry.ModTime().UnixMilli(),
		})
	}
	plog.Debug("sftp listed files", "count", len(result), "directory", s.directory)
	return result, nil
}

func (s *SFTP) Download(_ context.Context, name string) (string, error) {
	sshClient, sftpClient, err := s.connect()
	if err != nil {
		return "", fmt.Errorf("sftp download failed for %s: %w", name, err)
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	remotePath := path.Join(s.directory, name)
	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp download failed for %s: %w", name, err)
	}
	defer remoteFile.Close()

	localFile, err := os.CreateTemp("", "docsync-*-"+name)
	if err != nil {
		return "", fmt.Errorf("sftp download failed for %s: %w", name, err)
	}
	defer localFile.Close()

	if _, err := remoteFile.WriteTo(localFile); err != nil {
		os.Remove(localFile.Name())
		return "", fmt.Errorf("sftp download failed for %s: %w", name, err)
	}

	plog.Debug("sftp downloaded file", "name", name, "tempPath", localFile.Name())
	return localFile.Name(), nil
}

var _ FileSource = (*SFTP)(nil)

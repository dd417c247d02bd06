// Package failurelog implements the append-only, rotated failure log
// used to record documents the backend has terminally rejected.
// Grounded on FailureLogWriter.java.
package failurelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// maxRotatedFiles caps how many archived logs are kept: log.1..log.5.
const maxRotatedFiles = 5

// Log is an append-only, size-rotated, pipe-separated failure record.
type Log struct {
	path         string
	maxSizeBytes int64
}

// New returns a Log writing to path, rotating once it reaches
// maxSizeKB kilobytes.
func New(path string, maxSizeKB int64) *Log {
	return &Log{path: path, maxSizeBytes: maxSizeKB * 1024}
}

// LogFailure appends one line recording a terminal failure. Empty
// strings stand in for absent fields. Rotation, if the current file is
// at or above the size threshold, happens first.
func (l *Log) LogFailure(fileName, reason, trackID, hash, createdAt string) {
	timestamp := time.Now().Format(time.RFC3339)
	line := fmt.Sprintf("%s | file=%s | reason=%s | track_id=%s | hash=%s | created_at=%s\n",
		timestamp, fileName, reason, trackID, hash, createdAt)

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		plog.Error("failed to create failure log directory", "dir", dir, "error", err)
		return
	}

	if err := l.rotateIfNeeded(); err != nil {
		plog.Error("failed to rotate failure log", "error", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		plog.Error("failed to write failure log entry", "file", fileName, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		plog.Error("failed to write failure log entry", "file", fileName, "error", err)
	}
}

// IsAlreadyLogged scans the current and rotated files for a line
// carrying trackID; if createdAt is non-empty the same created_at
// substring must also be present. Used for idempotent startup failure
// reporting.
func (l *Log) IsAlreadyLogged(trackID, createdAt string) bool {
	if trackID == "" {
		return false
	}
	return l.anyLineMatches(func(line string) bool {
		if !strings.Contains(line, "track_id="+trackID) {
			return false
		}
		return createdAt == "" || strings.Contains(line, "created_at="+createdAt)
	})
}

// IsFileHashFailed scans the current and rotated files for a line
// carrying both fileName and hash. Used to suppress re-upload of
// content whose previous upload was terminally rejected. Only the current
// file and log.1..log.5 are scanned (as for IsAlreadyLogged): a line
// rotated out past log.5 is no longer found, so that content becomes
// eligible for upload again.
func (l *Log) IsFileHashFailed(fileName, hash string) bool {
	if fileName == "" || hash == "" {
		return false
	}
	return l.anyLineMatches(func(line string) bool {
		return strings.Contains(line, "file="+fileName) && strings.Contains(line, "hash="+hash)
	})
}

func (l *Log) anyLineMatches(match func(line string) bool) bool {
	for i := 0; i <= maxRotatedFiles; i++ {
		path := l.rotatedPath(i)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line != "" && match(line) {
				return true
			}
		}
	}
	return false
}

func (l *Log) rotatedPath(i int) string {
	if i == 0 {
		return l.path
	}
	return l.path + "." + strconv.Itoa(i)
}

func (l *Log) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil // no current file, nothing to rotate
	}
	if info.Size() < l.maxSizeBytes {
		return nil
	}

	plog.Info("rotating failure log", "maxSizeKB", l.maxSizeBytes/1024)

	for i := maxRotatedFiles - 1; i >= 1; i-- {
		source := l.rotatedPath(i)
		target := l.rotatedPath(i + 1)
		if _, err := os.Stat(source); err != nil {
			continue
		}
		if err := os.Rename(source, target); err != nil {
			return fmt.Errorf("rotating %s to %s: %w", source, target, err)
		}
	}

	return os.Rename(l.path, l.rotatedPath(1))
}

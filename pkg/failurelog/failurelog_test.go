package failurelog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixelgardenlabs/docsync/pkg/failurelog"
)

func TestLogFailureWritesLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.log")
	log := failurelog.New(path, 1024)

	log.LogFailure("a.pdf", "backend status: failed", "track-1", "hash1", "2026-08-06T00:00:00Z")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	line := string(data)
	for _, want := range []string{"file=a.pdf", "reason=backend status: failed", "track_id=track-1", "hash=hash1", "created_at=2026-08-06T00:00:00Z"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestIsAlreadyLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.log")
	log := failurelog.New(path, 1024)
	log.LogFailure("a.pdf", "r", "track-1", "h", "2026-08-06T00:00:00Z")

	if !log.IsAlreadyLogged("track-1", "2026-08-06T00:00:00Z") {
		t.Errorf("IsAlreadyLogged() = false, want true for matching trackId+createdAt")
	}
	if log.IsAlreadyLogged("track-1", "2026-08-07T00:00:00Z") {
		t.Errorf("IsAlreadyLogged() = true, want false for mismatched createdAt")
	}
	if log.IsAlreadyLogged("track-2", "") {
		t.Errorf("IsAlreadyLogged() = true, want false for unknown trackId")
	}
	if log.IsAlreadyLogged("", "") {
		t.Errorf("IsAlreadyLogged() = true, want false for empty trackId")
	}
}

func TestIsFileHashFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.log")
	log := failurelog.New(path, 1024)
	log.LogFailure("a.pdf", "r", "track-1", "hash1", "")

	if !log.IsFileHashFailed("a.pdf", "hash1") {
		t.Errorf("IsFileHashFailed() = false, want true")
	}
	if log.IsFileHashFailed("a.pdf", "hash2") {
		t.Errorf("IsFileHashFailed() = true, want false for mismatched hash")
	}
	if log.IsFileHashFailed("b.pdf", "hash1") {
		t.Errorf("IsFileHashFailed() = true, want false for mismatched file")
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.log")
	log := failurelog.New(path, 0) // rotate on every write once file exists

	log.LogFailure("a.pdf", "r", "track-1", "h", "")
	log.LogFailure("b.pdf", "r", "track-2", "h", "")

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", path, err)
	}
	if !log.IsAlreadyLogged("track-1", "") {
		t.Errorf("IsAlreadyLogged() should still find track-1 in rotated file")
	}
	if !log.IsAlreadyLogged("track-2", "") {
		t.Errorf("IsAlreadyLogged() should find track-2 in current file")
	}
}

func TestLogFailureCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "failures.log")
	log := failurelog.New(path, 1024)
	log.LogFailure("a.pdf", "r", "track-1", "h", "")

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected log file to exist after creating parent dirs: %v", err)
	}
}

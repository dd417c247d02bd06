package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHasAllowedExtension(t *testing.T) {
	exts := []string{".pdf", ".doc", ".docx"}
	cases := map[string]bool{
		"report.PDF":    true,
		"report.pdf":    true,
		"contract.docx": true,
		"notes.txt":     false,
		"noextension":   false,
		"weird.PDF.tmp": false,
		"a.b.docx":      true,
	}
	for name, want := range cases {
		if got := HasAllowedExtension(name, exts); got != want {
			t.Errorf("HasAllowedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	if err := AtomicWriteFile(path, []byte(`{"a":1}`), UserWritableFilePerms); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("file content = %q, want %q", data, `{"a":1}`)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if e.Name() != "state.json" {
			t.Errorf("leftover temp file found: %s", e.Name())
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got, err := ExpandPath("~/data/state.json")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	want := filepath.Join(home, "data", "state.json")
	if got != want {
		t.Errorf("ExpandPath() = %q, want %q", got, want)
	}
}

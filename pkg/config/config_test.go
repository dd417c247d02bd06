package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newValidConfig(t *testing.T) Config {
	cfg := NewDefault()
	cfg.Source.Directory = t.TempDir()
	cfg.Backend.BaseURL = "http://localhost:9621"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := newValidConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestValidateRejectsEmptySourceDirectory(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Source.Directory = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty source directory")
	}
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Source.Protocol = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestValidateRequiresHostForRemoteProtocols(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Source.Protocol = "sftp"
	cfg.Source.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing host on sftp protocol")
	}
}

func TestValidateRejectsEmptyBackendURL(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Backend.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty backend base URL")
	}
}

func TestValidateRejectsBadStartupSync(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Sync.StartupSync = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid startup-sync mode")
	}
}

func TestValidateRequiresPreprocessorCommandWhenEnabled(t *testing.T) {
	cfg := newValidConfig(t)
	cfg.Preprocessor.Enabled = true
	cfg.Preprocessor.Command = "  "
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled preprocessor with blank command")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Sync.PollIntervalMS != NewDefault().Sync.PollIntervalMS {
		t.Errorf("Load() of missing file did not return defaults")
	}
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.config.json")
	partial := map[string]any{
		"source": map[string]any{"directory": "/srv/docs"},
		"sync":   map[string]any{"startupSync": "full"},
	}
	data, err := json.Marshal(partial)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.Directory != "/srv/docs" {
		t.Errorf("Source.Directory = %q, want /srv/docs", cfg.Source.Directory)
	}
	if cfg.Sync.StartupSync != "full" {
		t.Errorf("Sync.StartupSync = %q, want full", cfg.Sync.StartupSync)
	}
	// Fields absent from the file fall back to defaults.
	if cfg.Sync.PollIntervalMS != NewDefault().Sync.PollIntervalMS {
		t.Errorf("Sync.PollIntervalMS = %d, want default preserved", cfg.Sync.PollIntervalMS)
	}
	if len(cfg.Source.AllowedExtensions) == 0 {
		t.Errorf("Source.AllowedExtensions should retain its default when absent from the file")
	}
}

func TestMergeConfigWithFlagsOnlyOverlaysSetFlags(t *testing.T) {
	base := NewDefault()
	base.Source.Directory = "/original"

	merged := MergeConfigWithFlags(base, map[string]any{
		"startup-sync": "upload",
	})

	if merged.Sync.StartupSync != "upload" {
		t.Errorf("Sync.StartupSync = %q, want upload", merged.Sync.StartupSync)
	}
	if merged.Source.Directory != "/original" {
		t.Errorf("Source.Directory = %q, want unchanged at /original", merged.Source.Directory)
	}
}

func TestMergeConfigWithFlagsAllowedExtensions(t *testing.T) {
	base := NewDefault()
	merged := MergeConfigWithFlags(base, map[string]any{
		"allowed-extensions": []string{".txt", ".md"},
	})
	if len(merged.Source.AllowedExtensions) != 2 || merged.Source.AllowedExtensions[0] != ".txt" {
		t.Errorf("AllowedExtensions = %v, want [.txt .md]", merged.Source.AllowedExtensions)
	}
}

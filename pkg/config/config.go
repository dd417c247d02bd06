// Package config loads and validates docsync's configuration, adapted from
// the teacher's pkg/config: literal defaults, a JSON file overlaid on top of
// them, and a sparse flag-overlay pattern for CLI overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/syncengine"
	"github.com/pixelgardenlabs/docsync/pkg/util"
)

// SourceConfig configures the remote FileSource.
type SourceConfig struct {
	Protocol          string   `json:"protocol"`
	Host              string   `json:"host,omitempty"`
	Port              int      `json:"port,omitempty"`
	Username          string   `json:"username,omitempty"`
	Password          string   `json:"password,omitempty"`
	PrivateKeyPath    string   `json:"privateKeyPath,omitempty"`
	Directory         string   `json:"directory"`
	AllowedExtensions []string `json:"allowedExtensions"`
}

// BackendConfig configures the RAG ingest HTTP client.
type BackendConfig struct {
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// SyncConfig configures the poll-tick engine.
type SyncConfig struct {
	PollIntervalMS    int    `json:"pollIntervalMs"`
	StartupSync       string `json:"startupSync" comment:"One of 'none', 'upload', 'full'."`
	CleanupFailedDocs bool   `json:"cleanupFailedDocs"`
}

// PreprocessorConfig configures the optional external preprocessor.
type PreprocessorConfig struct {
	Enabled        bool   `json:"enabled"`
	Command        string `json:"command,omitempty" comment:"Space-split command, e.g. 'soffice --headless --convert-to pdf'."`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// FailuresConfig configures the failure-log side channel.
type FailuresConfig struct {
	LogPath   string `json:"logPath"`
	MaxSizeKB int64  `json:"maxSizeKb"`
}

// Config is the daemon's full, nested configuration.
type Config struct {
	LogLevel     string             `json:"logLevel"`
	StateFile    string             `json:"stateFilePath"`
	Source       SourceConfig       `json:"source"`
	Backend      BackendConfig      `json:"backend"`
	Sync         SyncConfig         `json:"sync"`
	Preprocessor PreprocessorConfig `json:"preprocessor"`
	Failures     FailuresConfig     `json:"failures"`
}

// NewDefault returns the literal defaults from spec.md §6.
func NewDefault() Config {
	return Config{
		LogLevel:  "info",
		StateFile: "data/state.json",
		Source: SourceConfig{
			Protocol:          "local",
			Directory:         "",
			AllowedExtensions: []string{".pdf", ".doc", ".docx"},
		},
		Backend: BackendConfig{
			BaseURL:        "",
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			PollIntervalMS:    60000,
			StartupSync:       "none",
			CleanupFailedDocs: false,
		},
		Preprocessor: PreprocessorConfig{
			Enabled:        false,
			Command:        "",
			TimeoutSeconds: 120,
		},
		Failures: FailuresConfig{
			LogPath:   "logs/failures.log",
			MaxSizeKB: 1024,
		},
	}
}

// Load reads a JSON config file at path and decodes it on top of
// NewDefault(), so missing fields fall back to defaults. A missing file is
// not an error; it returns the defaults.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer file.Close()

	plog.Info("loading configuration", "path", path)
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the configuration for logical errors, mirroring the
// density of the teacher's Config.Validate.
func (c *Config) Validate() error {
	if c.Source.Directory == "" {
		return fmt.Errorf("source.directory cannot be empty")
	}
	var err error
	c.Source.Directory, err = util.ExpandPath(c.Source.Directory)
	if err != nil {
		return fmt.Errorf("could not expand source.directory: %w", err)
	}

	switch strings.ToLower(c.Source.Protocol) {
	case "local", "sftp", "ftp":
	default:
		return fmt.Errorf("source.protocol must be 'local', 'sftp', or 'ftp', got %q", c.Source.Protocol)
	}
	if c.Source.Protocol != "local" && c.Source.Host == "" {
		return fmt.Errorf("source.host cannot be empty for protocol %q", c.Source.Protocol)
	}
	if len(c.Source.AllowedExtensions) == 0 {
		return fmt.Errorf("source.allowedExtensions cannot be empty")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseUrl cannot be empty")
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeoutSeconds must be greater than 0")
	}

	if c.Sync.PollIntervalMS <= 0 {
		return fmt.Errorf("sync.pollIntervalMs must be greater than 0")
	}
	switch c.Sync.StartupSync {
	case "none", "upload", "full":
	default:
		return fmt.Errorf("sync.startupSync must be 'none', 'upload', or 'full', got %q", c.Sync.StartupSync)
	}

	if c.Preprocessor.Enabled {
		if strings.TrimSpace(c.Preprocessor.Command) == "" {
			return fmt.Errorf("preprocessor.command cannot be empty when preprocessor.enabled is true")
		}
		if c.Preprocessor.TimeoutSeconds <= 0 {
			return fmt.Errorf("preprocessor.timeoutSeconds must be greater than 0")
		}
	}

	if c.StateFile == "" {
		return fmt.Errorf("stateFilePath cannot be empty")
	}
	if c.Failures.LogPath == "" {
		return fmt.Errorf("failures.logPath cannot be empty")
	}
	if c.Failures.MaxSizeKB <= 0 {
		return fmt.Errorf("failures.maxSizeKb must be greater than 0")
	}

	return nil
}

// StartupSyncMode maps the string config value to the syncengine's typed
// enum, defaulting to StartupSyncNone for an unrecognized value (Validate
// should already have rejected it, this is the last line of defense).
func (c *Config) StartupSyncMode() syncengine.StartupSyncMode {
	switch c.Sync.StartupSync {
	case "upload":
		return syncengine.StartupSyncUpload
	case "full":
		return syncengine.StartupSyncFull
	default:
		return syncengine.StartupSyncNone
	}
}

// PollInterval returns the poll interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMS) * time.Millisecond
}

// PreprocessorTimeout returns the preprocessor timeout as a time.Duration.
func (c *Config) PreprocessorTimeout() time.Duration {
	return time.Duration(c.Preprocessor.TimeoutSeconds) * time.Second
}

// BackendTimeout returns the backend HTTP timeout as a time.Duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// LogSummary logs a flat, single-line summary of the effective config.
func (c *Config) LogSummary() {
	plog.Info("configuration loaded",
		"log_level", c.LogLevel,
		"state_file", c.StateFile,
		"source_protocol", c.Source.Protocol,
		"source_directory", c.Source.Directory,
		"allowed_extensions", strings.Join(c.Source.AllowedExtensions, ", "),
		"backend_url", c.Backend.BaseURL,
		"poll_interval_ms", c.Sync.PollIntervalMS,
		"startup_sync", c.Sync.StartupSync,
		"cleanup_failed_docs", c.Sync.CleanupFailedDocs,
		"preprocessor_enabled", c.Preprocessor.Enabled,
		"failure_log", c.Failures.LogPath,
	)
}

// MergeConfigWithFlags overlays flag values explicitly set by the user on
// top of a base configuration, mirroring the teacher's sparse type-switch
// overlay driven by flagparse's "was this flag set" detection.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "log-level":
			merged.LogLevel = value.(string)
		case "state-file":
			merged.StateFile = value.(string)
		case "poll-interval":
			merged.Sync.PollIntervalMS = value.(int)
		case "startup-sync":
			merged.Sync.StartupSync = value.(string)
		case "cleanup-failed-docs":
			merged.Sync.CleanupFailedDocs = value.(bool)
		case "source-protocol":
			merged.Source.Protocol = value.(string)
		case "source-directory":
			merged.Source.Directory = value.(string)
		case "source-host":
			merged.Source.Host = value.(string)
		case "source-port":
			merged.Source.Port = value.(int)
		case "source-username":
			merged.Source.Username = value.(string)
		case "source-password":
			merged.Source.Password = value.(string)
		case "source-private-key-path":
			merged.Source.PrivateKeyPath = value.(string)
		case "allowed-extensions":
			merged.Source.AllowedExtensions = value.([]string)
		case "backend-url":
			merged.Backend.BaseURL = value.(string)
		case "backend-api-key":
			merged.Backend.APIKey = value.(string)
		case "backend-timeout-seconds":
			merged.Backend.TimeoutSeconds = value.(int)
		case "preprocessor-enabled":
			merged.Preprocessor.Enabled = value.(bool)
		case "preprocessor-command":
			merged.Preprocessor.Command = value.(string)
		case "preprocessor-timeout-seconds":
			merged.Preprocessor.TimeoutSeconds = value.(int)
		case "failure-log-path":
			merged.Failures.LogPath = value.(string)
		case "failure-log-max-size-kb":
			merged.Failures.MaxSizeKB = int64(value.(int))
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}

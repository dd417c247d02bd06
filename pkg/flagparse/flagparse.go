// Package flagparse parses docsync's command-line flags into a sparse
// overlay map, adapted from the teacher's pkg/flagparse: flag.Visit
// distinguishes "explicitly set by the user" from "left at its zero value"
// so config.MergeConfigWithFlags only overrides what was actually passed.
package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelgardenlabs/docsync/pkg/buildinfo"
)

// Result is the outcome of parsing the daemon's flags.
type Result struct {
	ConfigPath string
	Quiet      bool
	Version    bool
	Help       bool
	SetFlags   map[string]any
}

type cliFlags struct {
	ConfigPath string
	Quiet      bool
	Version    bool

	LogLevel          *string
	StateFile         *string
	PollIntervalMS    *int
	StartupSync       *string
	CleanupFailedDocs *bool

	SourceProtocol       *string
	SourceDirectory      *string
	SourceHost           *string
	SourcePort           *int
	SourceUsername       *string
	SourcePassword       *string
	SourcePrivateKeyPath *string
	AllowedExtensions    *string

	BackendURL            *string
	BackendAPIKey         *string
	BackendTimeoutSeconds *int

	PreprocessorEnabled        *bool
	PreprocessorCommand        *string
	PreprocessorTimeoutSeconds *int

	FailureLogPath      *string
	FailureLogMaxSizeKB *int
}

// Parse parses args (usually os.Args[1:]) into a Result.
func Parse(args []string) (Result, error) {
	fs := flag.NewFlagSet("docsync", flag.ContinueOnError)
	f := &cliFlags{}

	fs.StringVar(&f.ConfigPath, "config", "docsync.config.json", "Path to the JSON configuration file.")
	fs.BoolVar(&f.Quiet, "quiet", false, "Suppress info-level logging; only warnings and errors are printed.")
	fs.BoolVar(&f.Version, "version", false, "Print the version and exit.")

	f.LogLevel = fs.String("log-level", "", "Log level: 'debug', 'info', 'warn', 'error'.")
	f.StateFile = fs.String("state-file", "", "Path to the state snapshot file.")
	f.PollIntervalMS = fs.Int("poll-interval", 0, "Poll interval in milliseconds.")
	f.StartupSync = fs.String("startup-sync", "", "Startup reconciliation mode: 'none', 'upload', or 'full'.")
	f.CleanupFailedDocs = fs.Bool("cleanup-failed-docs", false, "Delete terminally-failed documents from the backend.")

	f.SourceProtocol = fs.String("source-protocol", "", "Source protocol: 'local', 'sftp', or 'ftp'.")
	f.SourceDirectory = fs.String("source-directory", "", "Source directory to watch.")
	f.SourceHost = fs.String("source-host", "", "Source host, for sftp/ftp protocols.")
	f.SourcePort = fs.Int("source-port", 0, "Source port, for sftp/ftp protocols.")
	f.SourceUsername = fs.String("source-username", "", "Source username, for sftp/ftp protocols.")
	f.SourcePassword = fs.String("source-password", "", "Source password, for sftp/ftp protocols.")
	f.SourcePrivateKeyPath = fs.String("source-private-key-path", "", "Path to an SSH private key, for sftp protocol.")
	f.AllowedExtensions = fs.String("allowed-extensions", "", "Comma-separated list of allowed file extensions.")

	f.BackendURL = fs.String("backend-url", "", "Base URL of the RAG ingest backend.")
	f.BackendAPIKey = fs.String("backend-api-key", "", "API key for the RAG ingest backend.")
	f.BackendTimeoutSeconds = fs.Int("backend-timeout-seconds", 0, "HTTP timeout in seconds for backend requests.")

	f.PreprocessorEnabled = fs.Bool("preprocessor-enabled", false, "Enable the external preprocessor.")
	f.PreprocessorCommand = fs.String("preprocessor-command", "", "Space-split preprocessor command.")
	f.PreprocessorTimeoutSeconds = fs.Int("preprocessor-timeout-seconds", 0, "Preprocessor hard timeout in seconds.")

	f.FailureLogPath = fs.String("failure-log-path", "", "Path to the failure log.")
	f.FailureLogMaxSizeKB = fs.Int("failure-log-max-size-kb", 0, "Failure log rotation threshold in kilobytes.")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return Result{}, err
	}

	usedFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { usedFlags[fl.Name] = true })

	setFlags := make(map[string]any)
	addIfUsed(setFlags, usedFlags, "log-level", f.LogLevel)
	addIfUsed(setFlags, usedFlags, "state-file", f.StateFile)
	addIfUsed(setFlags, usedFlags, "poll-interval", f.PollIntervalMS)
	addIfUsed(setFlags, usedFlags, "startup-sync", f.StartupSync)
	addIfUsed(setFlags, usedFlags, "cleanup-failed-docs", f.CleanupFailedDocs)
	addIfUsed(setFlags, usedFlags, "source-protocol", f.SourceProtocol)
	addIfUsed(setFlags, usedFlags, "source-directory", f.SourceDirectory)
	addIfUsed(setFlags, usedFlags, "source-host", f.SourceHost)
	addIfUsed(setFlags, usedFlags, "source-port", f.SourcePort)
	addIfUsed(setFlags, usedFlags, "source-username", f.SourceUsername)
	addIfUsed(setFlags, usedFlags, "source-password", f.SourcePassword)
	addIfUsed(setFlags, usedFlags, "source-private-key-path", f.SourcePrivateKeyPath)
	addIfUsed(setFlags, usedFlags, "backend-url", f.BackendURL)
	addIfUsed(setFlags, usedFlags, "backend-api-key", f.BackendAPIKey)
	addIfUsed(setFlags, usedFlags, "backend-timeout-seconds", f.BackendTimeoutSeconds)
	addIfUsed(setFlags, usedFlags, "preprocessor-enabled", f.PreprocessorEnabled)
	addIfUsed(setFlags, usedFlags, "preprocessor-command", f.PreprocessorCommand)
	addIfUsed(setFlags, usedFlags, "preprocessor-timeout-seconds", f.PreprocessorTimeoutSeconds)
	addIfUsed(setFlags, usedFlags, "failure-log-path", f.FailureLogPath)
	addIfUsed(setFlags, usedFlags, "failure-log-max-size-kb", f.FailureLogMaxSizeKB)
	addParsedIfUsed(setFlags, usedFlags, "allowed-extensions", f.AllowedExtensions, ParseCommaList)

	return Result{
		ConfigPath: f.ConfigPath,
		Quiet:      f.Quiet,
		Version:    f.Version,
		SetFlags:   setFlags,
	}, nil
}

func addIfUsed[T any](setFlags map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		setFlags[name] = *ptr
	}
}

func addParsedIfUsed(setFlags map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		setFlags[name] = parser(*ptr)
	}
}

// ParseCommaList splits a comma-separated flag value, trimming surrounding
// whitespace from each element and dropping empty entries.
func ParseCommaList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func printUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) one-way document sync daemon.\n\n", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Usage: %s [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

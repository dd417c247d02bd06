package preprocessor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// External runs a configured child process with two positional path
// arguments: <command...> <input_path> <output_path>. The child must write
// its result to output_path and exit 0; a non-zero exit or a timeout fails
// the preprocess step. Grounded on ExternalFilePreprocessor.java, with
// process-group-kill-on-timeout adapted from pkg/hook/hook_unix.go.
type External struct {
	commandParts []string
	timeout      time.Duration

	// commandContext is overridable in tests, mirroring pkg/hook's
	// HookExecutor.commandContext field.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExternal builds an External preprocessor from a space-split command
// string (spec.md §6 "preprocessor.command") and a hard timeout.
func NewExternal(command string, timeout time.Duration) (*External, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("preprocessor.command is empty")
	}
	return &External{
		commandParts:   parts,
		timeout:        timeout,
		commandContext: exec.CommandContext,
	}, nil
}

// Process invokes the external command, returning a fresh temp file path on
// success. The caller owns the returned path.
func (e *External) Process(ctx context.Context, inputPath, originalName string) (string, error) {
	outputFile, err := os.CreateTemp("", "docsync-pre-*-"+sanitizeSuffix(originalName))
	if err != nil {
		return "", fmt.Errorf("creating preprocessor output temp file: %w", err)
	}
	outputPath := outputFile.Name()
	outputFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := make([]string, 0, len(e.commandParts)-1+2)
	args = append(args, e.commandParts[1:]...)
	args = append(args, inputPath, outputPath)

	cmd := e.createCommand(runCtx, e.commandParts[0], args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	plog.Debug("running preprocessor", "file", originalName, "command", e.commandParts)
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		removeIfExists(outputPath)
		return "", fmt.Errorf("preprocessor timed out after %s for %s", e.timeout, originalName)
	}

	if runErr != nil {
		removeIfExists(outputPath)
		trimmed := strings.TrimSpace(output.String())
		if trimmed != "" {
			return "", fmt.Errorf("preprocessor failed for %s: %w: %s", originalName, runErr, trimmed)
		}
		return "", fmt.Errorf("preprocessor failed for %s: %w", originalName, runErr)
	}

	if trimmed := strings.TrimSpace(output.String()); trimmed != "" {
		plog.Debug("preprocessor output", "file", originalName, "output", trimmed)
	}
	plog.Info("preprocessed", "file", originalName)
	return outputPath, nil
}

func sanitizeSuffix(name string) string {
	return filepath.Base(name)
}

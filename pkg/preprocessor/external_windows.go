//go:build windows

package preprocessor

import (
	"context"
	"os/exec"

	"golang.org/x/sys/windows"
)

// createCommand builds the exec.Cmd for a preprocessor invocation on
// Windows, creating a new process group so a context timeout can terminate
// the whole tree. Adapted from pkg/hook/hook_windows.go.
func (e *External) createCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := e.commandContext(ctx, name, args...)
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}

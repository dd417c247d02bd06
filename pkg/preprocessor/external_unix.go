//go:build !windows

package preprocessor

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// createCommand builds the exec.Cmd for a preprocessor invocation on
// Unix-like systems, putting the child in its own process group so that a
// context timeout kills the whole process tree, not just the immediate
// child. Adapted from pkg/hook/hook_unix.go.
func (e *External) createCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := e.commandContext(ctx, name, args...)
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}

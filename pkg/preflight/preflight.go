// Package preflight provides validation checks that run before the sync
// engine's first reconciliation, so a misconfigured path fails fast with a
// clear error instead of surfacing mid-tick on the first StateStore save or
// FailureLog append.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckWritableFilePath ensures the parent directory of filePath exists (or
// can be created) and is writable. It is used for both the state file and
// the failure log, whose parent directories the daemon owns and creates on
// demand.
func CheckWritableFilePath(filePath string) error {
	dir := filepath.Dir(filePath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}

	tempFile := filepath.Join(dir, ".docsync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

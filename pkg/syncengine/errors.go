package syncengine

import (
	"github.com/pixelgardenlabs/docsync/pkg/hints"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// logBackendErr logs a failed backend call, distinguishing a hinted
// transient-I/O condition (network dial/timeout, per spec §7) from a
// harder failure such as a decode error or non-2xx status. The soft case
// logs at warn; both cases leave the failure log untouched — failure lines
// are written only by callers that see a terminal per-file outcome
// (resolveDocId, checkPendingUploads, reportUnreportedFailures, and a
// non-busy delete error during an UPDATE in handleNewAndUpdatedFiles).
func logBackendErr(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if hints.IsHint(err) {
		plog.Warn(msg, args...)
		return
	}
	plog.Error(msg, args...)
}

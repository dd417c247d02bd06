package syncengine

import (
	"context"
	"errors"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
)

// errBusyDeferred tags a delete that was deferred to the pending-delete
// queue rather than failed outright, so callers can distinguish "retry
// me next tick" from "give up and drop the state entry".
var errBusyDeferred = errors.New("delete deferred: backend busy")

// syncDelete deletes doc from the backend, recording a busy response as
// a PendingDelete with no owning file name. Used by startup
// reconciliation for duplicate/stale/orphan deletes, where the caller
// (reconcileFile) upgrades the resulting entry to carry the file name
// and reuploadOnSuccess once it knows whether a reupload must follow.
// Returns 1 on success, 0 otherwise.
func (e *Engine) syncDelete(ctx context.Context, doc backend.DocumentInfo, reason string) int {
	plog.Info("delete", "reason", reason, "filePath", doc.FilePath, "docId", doc.ID)
	err := e.backend.Delete(ctx, doc.ID)
	if err == nil {
		return 1
	}
	if backend.IsBusy(err) {
		plog.Warn("delete deferred, backend busy", "docId", doc.ID)
		e.store.AddPendingDelete(doc.ID, statestore.PendingDelete{})
		return 0
	}
	plog.Error("delete failed", "docId", doc.ID, "error", err)
	return 0
}

// deleteByDocId deletes the backend document currently on file for name,
// used by poll-tick UPDATE and DELETE handling where the owning file is
// already known. On a busy response it records a PendingDelete carrying
// that file name and returns errBusyDeferred so the caller does not
// advance lastModified or drop the file-state entry.
func (e *Engine) deleteByDocId(ctx context.Context, name string) error {
	state, ok := e.store.GetEntry(name)
	if !ok || state.DocID == "" {
		plog.Warn("no docId on file for delete, skipping", "file", name)
		return nil
	}

	err := e.backend.Delete(ctx, state.DocID)
	if err == nil {
		return nil
	}
	if backend.IsBusy(err) {
		e.store.AddPendingDelete(state.DocID, statestore.PendingDelete{FileName: name})
		return errBusyDeferred
	}
	return err
}

// retryPendingDeletes attempts every carried-over pending delete.
// currentFiles is the freshly listed source snapshot; when a retry
// succeeds and the entry's ReuploadOnSuccess flag is set, the file is
// re-uploaded immediately if it is still present in currentFiles.
func (e *Engine) retryPendingDeletes(ctx context.Context, currentFiles map[string]int64) {
	pending := e.store.PendingDeletes()
	if len(pending) == 0 {
		return
	}
	plog.Info("retrying pending deletes", "count", len(pending))

	for docID, entry := range pending {
		err := e.backend.Delete(ctx, docID)
		switch {
		case err == nil:
			plog.Info("retry-delete successful", "docId", docID)
			e.store.RemovePendingDelete(docID)
			if entry.FileName != "" {
				e.store.RemoveEntry(entry.FileName)
			}
			if entry.ReuploadOnSuccess && entry.FileName != "" {
				if lastModified, ok := currentFiles[entry.FileName]; ok {
					e.reupload(ctx, entry.FileName, lastModified)
				}
			}
		case backend.IsBusy(err):
			plog.Warn("retry-delete still busy", "docId", docID)
		default:
			plog.Error("retry-delete failed", "docId", docID, "error", err)
			e.store.RemovePendingDelete(docID)
			if entry.FileName != "" {
				e.store.RemoveEntry(entry.FileName)
			}
		}
	}
}

// reupload re-runs the upload subroutine for name and installs a fresh
// FileState, used when a deferred stale-delete's retry finally succeeds.
// The caller has already dropped the old FileEntry, so on a transient
// failure we simply leave the file unknown rather than record a
// zero-hash entry that would never be retried.
func (e *Engine) reupload(ctx context.Context, name string, lastModified int64) {
	result := e.downloadAndUpload(ctx, name)
	if result.failed {
		plog.Warn("reupload deferred, transient failure", "file", name)
		return
	}
	e.store.PutEntry(name, statestore.FileEntry{
		Hash:         result.hash,
		LastModified: lastModified,
		DocID:        result.docID,
	})
	e.metrics.AddUpdated(1)
}

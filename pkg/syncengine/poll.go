package syncengine

import (
	"context"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
)

// Tick runs one poll cycle. Ordering is significant: pending deletes
// resolve before pending uploads, pending uploads before new/updated
// files, new/updated files before deleted files — see spec §5.
func (e *Engine) Tick(ctx context.Context) {
	plog.Debug("polling remote directory")

	currentFiles, listErr := e.listCurrentFiles(ctx)
	if listErr != nil {
		plog.Error("listing source failed, retrying pending work only this tick", "error", listErr)
	}

	// Pending-delete/upload retries don't need a fresh listing to be
	// correct — worst case, a listing failure just defers a
	// ReuploadOnSuccess reupload to a later tick, once currentFiles is
	// available again. currentFiles is nil here on a listing failure,
	// which retryPendingDeletes' map lookup treats like "file not
	// currently present".
	e.retryPendingDeletes(ctx, currentFiles)
	changed := e.checkPendingUploads(ctx)

	if listErr != nil {
		if changed {
			if err := e.store.Save(); err != nil {
				plog.Error("failed to save state", "error", err)
			}
		}
		e.metrics.Log()
		return
	}

	changed = e.handleNewAndUpdatedFiles(ctx, currentFiles) || changed
	changed = e.handleDeletedFiles(ctx, currentFiles) || changed

	if changed {
		if err := e.store.Save(); err != nil {
			plog.Error("failed to save state", "error", err)
		}
	}
	e.metrics.Log()
}

// checkPendingUploads resolves every tracked upload against the
// backend's current listing.
func (e *Engine) checkPendingUploads(ctx context.Context) bool {
	pending := e.store.PendingUploads()
	if len(pending) == 0 {
		return false
	}
	plog.Info("checking pending uploads", "count", len(pending))

	docs, err := e.backend.List(ctx)
	if err != nil {
		logBackendErr("failed to fetch document statuses for pending-upload check", err)
		return false
	}
	byStatus := backend.ByStatus(docs)

	changed := false
	for trackID, up := range pending {
		foundDoc, foundStatus, found := findByTrackID(byStatus, trackID)

		switch {
		case found && foundStatus == backend.StatusProcessed:
			plog.Info("pending upload processed", "file", up.FileName, "docId", foundDoc.ID)
			if state, ok := e.store.GetEntry(up.FileName); ok {
				e.store.PutEntry(up.FileName, statestore.FileEntry{
					Hash:         state.Hash,
					LastModified: state.LastModified,
					DocID:        foundDoc.ID,
				})
				changed = true
			}
			e.store.RemovePendingUpload(trackID)
			e.metrics.AddUpdated(1)

		case found && foundStatus == backend.StatusFailed:
			reason := foundDoc.ErrorMsg
			if reason == "" {
				reason = "backend status: failed"
			}
			plog.Error("upload failed in backend", "file", up.FileName, "trackId", trackID, "reason", reason)
			e.failures.LogFailure(up.FileName, reason, trackID, up.Hash, foundDoc.CreatedAt)
			e.store.RemovePendingUpload(trackID)
			e.metrics.AddFailed(1)
			if e.cfg.CleanupFailedDocs {
				e.cleanupFailedDoc(ctx, foundDoc)
			}

		case !found:
			plog.Warn("pending upload not found in backend", "file", up.FileName, "trackId", trackID)
			e.failures.LogFailure(up.FileName, "document not found in backend after upload", trackID, up.Hash, "")
			e.store.RemovePendingUpload(trackID)
			e.metrics.AddFailed(1)

		default:
			// still processing, leave the entry for next cycle
		}
	}
	return changed
}

func findByTrackID(byStatus map[string][]backend.DocumentInfo, trackID string) (backend.DocumentInfo, string, bool) {
	for status, list := range byStatus {
		for _, doc := range list {
			if doc.TrackID == trackID {
				return doc, status, true
			}
		}
	}
	return backend.DocumentInfo{}, "", false
}

// handleNewAndUpdatedFiles implements step 4 of §4.11: CREATE for
// files with no known state, UPDATE (delete + reupload) for files whose
// lastModified changed.
func (e *Engine) handleNewAndUpdatedFiles(ctx context.Context, currentFiles map[string]int64) bool {
	changed := false
	for name, lastModified := range currentFiles {
		state, known := e.store.GetEntry(name)

		switch {
		case !known:
			plog.Info("CREATE", "file", name)
			result := e.downloadAndUpload(ctx, name)
			if result.failed {
				plog.Warn("CREATE deferred, transient failure", "file", name)
				continue
			}
			e.store.PutEntry(name, statestore.FileEntry{Hash: result.hash, LastModified: lastModified, DocID: result.docID})
			e.metrics.AddCreated(1)
			changed = true

		case state.LastModified != lastModified:
			plog.Info("UPDATE", "file", name)
			if err := e.deleteByDocId(ctx, name); err != nil {
				if err == errBusyDeferred {
					plog.Warn("UPDATE deferred, backend busy", "file", name)
					continue
				}
				plog.Error("failed to process update", "file", name, "error", err)
				e.failures.LogFailure(name, err.Error(), "", state.Hash, "")
				e.metrics.AddFailed(1)
				continue
			}
			result := e.downloadAndUpload(ctx, name)
			if result.failed {
				plog.Warn("UPDATE deferred, transient failure", "file", name)
				// The old backend document is already gone; keep the old
				// lastModified so this file is retried as an UPDATE next
				// tick, but drop the now-invalid docId so deleteByDocId
				// doesn't try to delete it again.
				e.store.PutEntry(name, statestore.FileEntry{Hash: state.Hash, LastModified: state.LastModified, DocID: ""})
				changed = true
				continue
			}
			e.store.PutEntry(name, statestore.FileEntry{Hash: result.hash, LastModified: lastModified, DocID: result.docID})
			e.metrics.AddUpdated(1)
			changed = true
		}
	}
	return changed
}

// handleDeletedFiles implements step 5 of §4.11: every tracked file
// missing from currentFiles is deleted from the backend and dropped
// from state.
func (e *Engine) handleDeletedFiles(ctx context.Context, currentFiles map[string]int64) bool {
	changed := false
	for _, name := range e.store.FileNames() {
		if _, present := currentFiles[name]; present {
			continue
		}

		plog.Info("DELETE", "file", name)
		err := e.deleteByDocId(ctx, name)
		switch {
		case err == nil:
			e.store.RemoveEntry(name)
			e.metrics.AddDeleted(1)
			changed = true
		case err == errBusyDeferred:
			plog.Warn("DELETE deferred, backend busy", "file", name)
		default:
			plog.Error("failed to delete", "file", name, "error", err)
			e.store.RemoveEntry(name)
			changed = true
		}
	}
	return changed
}

// listCurrentFiles snapshots the source directory as name -> lastModified.
func (e *Engine) listCurrentFiles(ctx context.Context) (map[string]int64, error) {
	entries, err := e.source.List(ctx)
	if err != nil {
		return nil, err
	}
	files := make(map[string]int64, len(entries))
	for _, entry := range entries {
		files[entry.Name] = entry.LastModifiedMillis
	}
	return files, nil
}

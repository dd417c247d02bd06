package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
)

// uploadResult is the outcome of downloadAndUpload. hash is set once the
// file was hashed. docID is empty when the upload is still pending, was
// rejected, or was suppressed. failed marks a genuine transient failure
// (download, hash, preprocess, rename, or any Backend.Upload error) as
// opposed to a
// legitimate no-docID outcome (suppressed-by-failure-log, still
// processing, or immediately rejected by the backend) — callers must not
// record a FileEntry advancing lastModified when failed is true, or the
// file silently drops out of sync until its mtime happens to change
// again. See spec §7's "Transient-I/O … next tick retries".
type uploadResult struct {
	hash   string
	docID  string
	failed bool
}

// downloadAndUpload implements the upload subroutine (download, hash,
// suppress-if-failed, preprocess, rename to the original filename,
// upload, resolve docId), releasing every temporary path it owns on
// every exit path.
func (e *Engine) downloadAndUpload(ctx context.Context, name string) uploadResult {
	inputPath, err := e.source.Download(ctx, name)
	if err != nil {
		plog.Error("download failed", "file", name, "error", err)
		return uploadResult{failed: true}
	}
	defer os.Remove(inputPath)

	hash, err := hashFile(inputPath)
	if err != nil {
		plog.Error("hashing failed", "file", name, "error", err)
		return uploadResult{failed: true}
	}

	if e.failures.IsFileHashFailed(name, hash) {
		plog.Info("suppressing upload of previously failed content", "file", name, "hash", hash)
		e.metrics.AddSuppressed(1)
		return uploadResult{hash: hash}
	}

	return e.finishUpload(ctx, name, inputPath, hash)
}

// finishUpload preprocesses an already-downloaded, already-hashed file
// and uploads it, renaming it to its original name so the backend's
// filename-based dedup sees the right identity. Shared by
// downloadAndUpload and the startup stale-reupload path, which have
// already downloaded and hashed the file themselves.
func (e *Engine) finishUpload(ctx context.Context, name, inputPath, hash string) uploadResult {
	outputPath, err := e.preprocessor.Process(ctx, inputPath, name)
	if err != nil {
		plog.Error("preprocess failed", "file", name, "error", err)
		return uploadResult{hash: hash, failed: true}
	}
	if outputPath != inputPath {
		defer os.Remove(outputPath) // no-op once the rename below succeeds
	}

	renamed := filepath.Join(filepath.Dir(outputPath), name)
	if err := os.Rename(outputPath, renamed); err != nil {
		plog.Error("renaming preprocessed file for upload failed", "file", name, "error", err)
		return uploadResult{hash: hash, failed: true}
	}
	defer os.Remove(renamed)

	trackID, err := e.backend.Upload(ctx, renamed)
	if err != nil {
		logBackendErr("upload failed", err, "file", name)
		return uploadResult{hash: hash, failed: true}
	}
	if trackID != "" {
		e.store.AddPendingUpload(trackID, statestore.PendingUpload{FileName: name, Hash: hash, UploadedAt: time.Now()})
	}

	docID, failedImmediately := e.resolveDocId(ctx, trackID, name, hash)
	if failedImmediately {
		return uploadResult{hash: hash}
	}
	if docID != "" && trackID != "" {
		e.store.RemovePendingUpload(trackID)
	}
	return uploadResult{hash: hash, docID: docID}
}

// resolveDocId queries the backend's listing and resolves the docId
// assigned to a just-completed upload, matching first by trackID and
// falling back to a filename suffix match. failedImmediately reports
// that the upload was found in the failed bucket and a failure line has
// already been written.
func (e *Engine) resolveDocId(ctx context.Context, trackID, name, hash string) (docID string, failedImmediately bool) {
	docs, err := e.backend.List(ctx)
	if err != nil {
		logBackendErr("failed to resolve docId", err, "file", name)
		return "", false
	}
	byStatus := backend.ByStatus(docs)

	if trackID != "" {
		for _, doc := range byStatus[backend.StatusFailed] {
			if doc.TrackID != trackID {
				continue
			}
			reason := doc.ErrorMsg
			if reason == "" {
				reason = "backend status: failed"
			}
			plog.Error("upload immediately failed", "file", name, "trackId", trackID, "reason", reason)
			e.failures.LogFailure(name, reason, trackID, hash, doc.CreatedAt)
			e.store.RemovePendingUpload(trackID)
			e.metrics.AddFailed(1)
			if e.cfg.CleanupFailedDocs {
				e.cleanupFailedDoc(ctx, doc)
			}
			return "", true
		}

		for _, list := range byStatus {
			for _, doc := range list {
				if doc.TrackID == trackID {
					return doc.ID, false
				}
			}
		}
	}

	for _, list := range byStatus {
		for _, doc := range list {
			if doc.FilePath != "" && strings.HasSuffix(doc.FilePath, name) {
				return doc.ID, false
			}
		}
	}

	return "", false
}

// cleanupFailedDoc best-effort deletes a terminally-failed document.
func (e *Engine) cleanupFailedDoc(ctx context.Context, doc backend.DocumentInfo) {
	if err := e.backend.Delete(ctx, doc.ID); err != nil && !backend.IsBusy(err) {
		plog.Warn("cleanup of failed doc failed", "docId", doc.ID, "error", err)
	}
}

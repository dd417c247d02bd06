package syncengine

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
)

// Startup performs one-time reconciliation before the first poll tick:
// report unreported backend failures, retry deferred deletes, pre-populate
// file state from the persisted snapshot, and (in upload/full modes)
// reconcile every source file against the backend's document set.
func (e *Engine) Startup(ctx context.Context) error {
	plog.Info("startup-sync", "mode", e.cfg.StartupSync)

	e.reportUnreportedFailures(ctx)

	currentFiles, err := e.listCurrentFiles(ctx)
	if err != nil {
		plog.Error("listing source failed during startup", "error", err)
		currentFiles = map[string]int64{}
	}

	persisted := e.store.LoadSnapshot()

	// Runs unconditionally regardless of startup-sync mode.
	e.retryPendingDeletes(ctx, currentFiles)

	for name, lastModified := range currentFiles {
		p, ok := persisted[name]
		if ok && p.LastModified == lastModified && p.Hash != "" {
			e.store.PutEntry(name, p)
			continue
		}
		docID := ""
		if ok {
			docID = p.DocID
		}
		e.store.PutEntry(name, statestore.FileEntry{LastModified: lastModified, DocID: docID})
	}

	if e.cfg.StartupSync == StartupSyncNone {
		plog.Info("startup-sync: none, skipping backend reconciliation", "files", len(currentFiles))
		return e.store.Save()
	}

	docs, err := e.backend.List(ctx)
	if err != nil {
		logBackendErr("startup-sync failed to list backend documents", err)
		return e.store.Save()
	}
	docsWithPath := withFilePath(docs)
	docsBySource := groupBySourceFile(docsWithPath, currentFiles)

	var uploaded, deleted, stale int
	for name := range currentFiles {
		u, d, s := e.reconcileFile(ctx, name, docsBySource[name])
		uploaded += u
		deleted += d
		stale += s
	}

	if e.cfg.StartupSync == StartupSyncFull {
		deleted += e.deleteOrphans(ctx, docsWithPath, currentFiles)
	}

	plog.Info("startup-sync completed",
		"uploaded", uploaded, "stale", stale, "deleted", deleted,
		"deferred", len(e.store.PendingDeletes()))
	return e.store.Save()
}

// reconcileFile reconciles one source file against its matching backend
// documents, per §4.7.
func (e *Engine) reconcileFile(ctx context.Context, name string, matches []backend.DocumentInfo) (uploaded, deleted, stale int) {
	state, _ := e.store.GetEntry(name)

	if len(matches) == 0 {
		plog.Info("startup-sync UPLOAD (missing)", "file", name)
		result := e.downloadAndUpload(ctx, name)
		if result.failed {
			plog.Warn("startup-sync UPLOAD deferred, transient failure", "file", name)
			// The pre-populate loop above already seeded an optimistic
			// entry for this file; drop it so the next tick sees the file
			// as unknown and retries a full CREATE instead of assuming
			// it's already synced.
			e.store.RemoveEntry(name)
			return 0, 0, 0
		}
		e.store.PutEntry(name, statestore.FileEntry{Hash: result.hash, LastModified: state.LastModified, DocID: result.docID})
		e.metrics.AddCreated(1)
		return 1, 0, 0
	}

	localHash := state.Hash
	var downloadedPath string
	defer func() {
		if downloadedPath != "" {
			os.Remove(downloadedPath)
		}
	}()

	if localHash == "" {
		path, err := e.source.Download(ctx, name)
		if err != nil {
			plog.Error("startup-sync failed to download for hashing", "file", name, "error", err)
			return 0, 0, 0
		}
		downloadedPath = path
		hash, err := hashFile(path)
		if err != nil {
			plog.Error("startup-sync failed to hash", "file", name, "error", err)
			return 0, 0, 0
		}
		localHash = hash
	} else {
		plog.Debug("startup-sync: using persisted hash", "file", name)
	}

	newest := newestDoc(matches)
	// Absence of docId forces a stale re-upload so the binding is
	// established freshly.
	hashMatch := state.DocID != "" && localHash == state.Hash

	if hashMatch {
		plog.Debug("startup-sync OK, hash match", "file", name)
		docID := state.DocID
		if docID == "" {
			docID = newest.ID
		}
		if e.cfg.StartupSync == StartupSyncFull {
			for _, dup := range matches {
				if dup.ID != newest.ID {
					deleted += e.syncDelete(ctx, dup, "duplicate")
				}
			}
		}
		e.store.PutEntry(name, statestore.FileEntry{Hash: localHash, LastModified: state.LastModified, DocID: docID})
		return 0, deleted, 0
	}

	plog.Info("startup-sync STALE", "file", name)
	stale = 1
	anyBusy := false
	for _, doc := range matches {
		deleted += e.syncDelete(ctx, doc, "stale")
		if _, busy := e.store.PendingDeletes()[doc.ID]; busy {
			anyBusy = true
			e.store.AddPendingDelete(doc.ID, statestore.PendingDelete{FileName: name, ReuploadOnSuccess: true})
		}
	}
	if anyBusy {
		// A later successful retry (poll or next startup) triggers the reupload.
		return 0, deleted, stale
	}

	if downloadedPath == "" {
		path, err := e.source.Download(ctx, name)
		if err != nil {
			plog.Error("startup-sync failed to re-download for stale upload", "file", name, "error", err)
			return 0, deleted, stale
		}
		downloadedPath = path
	}
	result := e.finishUpload(ctx, name, downloadedPath, localHash)
	if result.failed {
		plog.Warn("startup-sync STALE reupload deferred, transient failure", "file", name)
		// The stale documents are already deleted; drop the entry so the
		// next tick sees the file as unknown and retries a full CREATE.
		e.store.RemoveEntry(name)
		return 0, deleted, stale
	}
	e.store.PutEntry(name, statestore.FileEntry{Hash: localHash, LastModified: state.LastModified, DocID: result.docID})
	e.metrics.AddStale(1)
	return 1, deleted, stale
}

func (e *Engine) deleteOrphans(ctx context.Context, docsWithPath []backend.DocumentInfo, currentFiles map[string]int64) int {
	deleted := 0
	for _, doc := range docsWithPath {
		matched := false
		for name := range currentFiles {
			if strings.HasSuffix(doc.FilePath, name) {
				matched = true
				break
			}
		}
		if !matched {
			deleted += e.syncDelete(ctx, doc, "orphan")
		}
	}
	return deleted
}

func (e *Engine) reportUnreportedFailures(ctx context.Context) {
	docs, err := e.backend.List(ctx)
	if err != nil {
		logBackendErr("startup: failed to check for unreported failures", err)
		return
	}
	failed := backend.ByStatus(docs)[backend.StatusFailed]
	if len(failed) == 0 {
		return
	}

	logged := 0
	for _, doc := range failed {
		if e.failures.IsAlreadyLogged(doc.TrackID, doc.CreatedAt) {
			continue
		}
		reason := doc.ErrorMsg
		if reason == "" {
			reason = "backend status: failed"
		}
		e.failures.LogFailure(doc.FilePath, reason, doc.TrackID, "", doc.CreatedAt)
		logged++
		if e.cfg.CleanupFailedDocs {
			e.cleanupFailedDoc(ctx, doc)
		}
	}
	if logged > 0 {
		plog.Info("startup: logged previously unreported failures", "count", logged)
	}
}

func withFilePath(docs []backend.DocumentInfo) []backend.DocumentInfo {
	out := make([]backend.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		if d.FilePath != "" {
			out = append(out, d)
		}
	}
	return out
}

// groupBySourceFile binds each backend document to at most one source
// name via suffix match on filePath, first match wins. Source names are
// sorted for deterministic binding.
func groupBySourceFile(docs []backend.DocumentInfo, currentFiles map[string]int64) map[string][]backend.DocumentInfo {
	names := make([]string, 0, len(currentFiles))
	for name := range currentFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string][]backend.DocumentInfo)
	for _, doc := range docs {
		for _, name := range names {
			if strings.HasSuffix(doc.FilePath, name) {
				result[name] = append(result[name], doc)
				break
			}
		}
	}
	return result
}

// newestDoc returns the document with the greatest createdAt, treating
// an empty createdAt as the lowest possible value.
func newestDoc(docs []backend.DocumentInfo) backend.DocumentInfo {
	newest := docs[0]
	for _, d := range docs[1:] {
		if d.CreatedAt > newest.CreatedAt {
			newest = d
		}
	}
	return newest
}

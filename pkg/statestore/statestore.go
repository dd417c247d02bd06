// Package statestore persists the synchronization state between a
// FileSource and a backend across restarts. Grounded on
// FileStateStore.java: a single JSON snapshot holding a per-file map
// (hash, lastModified, docId) and a docId-keyed pending-deletes map;
// pending uploads are redundant with backend-queryable state and are
// kept in memory only.
package statestore

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/util"
)

// legacyHashPrefix marks a hash value computed by the historical,
// deprecated hash-embedded-filename scheme. Grounded on
// FileStateStore.java's deprecated HASH_PREFIX/extractHash helpers: old
// entries carry hashes of the form "legacy:<name-derived-digest>" and
// must be treated as always-stale so the file is re-hashed and
// re-uploaded exactly once during migration.
const legacyHashPrefix = "legacy:"

// FileEntry records what the store knows about one source file.
type FileEntry struct {
	Hash         string `json:"hash"`
	LastModified int64  `json:"lastModified"`
	DocID        string `json:"docId"`
}

// PendingDelete is a backend deletion deferred because the backend
// reported it was busy.
type PendingDelete struct {
	FileName          string `json:"fileName"`
	ReuploadOnSuccess bool   `json:"reuploadOnSuccess"`
}

// PendingUpload is an upload whose backend processing status is not
// yet known. Not persisted: on restart it is safely re-derived by
// startup reconciliation querying the backend directly.
type PendingUpload struct {
	FileName   string
	Hash       string
	UploadedAt time.Time
}

type persistedState struct {
	Files          map[string]FileEntry     `json:"files"`
	PendingDeletes map[string]PendingDelete `json:"pendingDeletes"`
}

// Store is the thread-safe, durable ledger of sync state. All exported
// methods are safe for concurrent use, though the engine's
// single-logical-worker model means they are called from one goroutine
// at a time in practice.
type Store struct {
	mu   sync.Mutex
	path string

	files          map[string]FileEntry
	pendingDeletes map[string]PendingDelete
	pendingUploads map[string]PendingUpload
}

// New returns a Store persisting to path. It starts empty; call
// LoadSnapshot to read whatever was previously persisted.
func New(path string) *Store {
	return &Store{
		path:           path,
		files:          make(map[string]FileEntry),
		pendingDeletes: make(map[string]PendingDelete),
		pendingUploads: make(map[string]PendingUpload),
	}
}

// LoadSnapshot reads the persisted file map and pending-deletes map
// from disk. It populates pendingDeletes directly into the store, but
// returns the file map as a snapshot rather than merging it into the
// live map — the caller (SyncEngine's startup reconciliation) decides
// which entries to retain. A missing or unreadable state file is
// treated as "nothing persisted", not an error.
func (s *Store) LoadSnapshot() map[string]FileEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]FileEntry{}
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return map[string]FileEntry{}
	}

	if filesRaw, ok := root["files"]; ok {
		var files map[string]FileEntry
		if err := json.Unmarshal(filesRaw, &files); err != nil {
			return map[string]FileEntry{}
		}
		if pdRaw, ok := root["pendingDeletes"]; ok {
			var pd map[string]PendingDelete
			if err := json.Unmarshal(pdRaw, &pd); err == nil {
				s.mu.Lock()
				for docID, entry := range pd {
					s.pendingDeletes[docID] = entry
				}
				s.mu.Unlock()
			}
		}
		return normalizeLegacyHashes(files)
	}

	// Legacy format: a flat map of file entries at the document root.
	var files map[string]FileEntry
	if err := json.Unmarshal(data, &files); err != nil {
		return map[string]FileEntry{}
	}
	return normalizeLegacyHashes(files)
}

// normalizeLegacyHashes marks any pre-migration, hash-embedded-filename
// entry as unconditionally stale by clearing its hash, so the engine's
// change-detection treats it as changed and re-hashes/re-uploads it
// exactly once.
func normalizeLegacyHashes(files map[string]FileEntry) map[string]FileEntry {
	for name, entry := range files {
		if strings.HasPrefix(entry.Hash, legacyHashPrefix) {
			entry.Hash = ""
			files[name] = entry
		}
	}
	return files
}

// Save atomically writes the current file map and pending-deletes map
// to disk as a single JSON snapshot.
func (s *Store) Save() error {
	s.mu.Lock()
	state := persistedState{
		Files:          cloneFiles(s.files),
		PendingDeletes: clonePendingDeletes(s.pendingDeletes),
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, util.UserWritableFilePerms)
}

func cloneFiles(m map[string]FileEntry) map[string]FileEntry {
	out := make(map[string]FileEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePendingDeletes(m map[string]PendingDelete) map[string]PendingDelete {
	out := make(map[string]PendingDelete, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ── File state ──────────────────────────────────────────────────────

func (s *Store) GetEntry(fileName string) (FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[fileName]
	return e, ok
}

func (s *Store) PutEntry(fileName string, entry FileEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileName] = entry
}

func (s *Store) RemoveEntry(fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileName)
}

// FileNames returns the file names currently tracked.
func (s *Store) FileNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names
}

// ── Pending deletes ─────────────────────────────────────────────────

func (s *Store) AddPendingDelete(docID string, entry PendingDelete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDeletes[docID] = entry
}

func (s *Store) RemovePendingDelete(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingDeletes, docID)
}

// PendingDeletes returns a snapshot copy of the pending-deletes map.
func (s *Store) PendingDeletes() map[string]PendingDelete {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePendingDeletes(s.pendingDeletes)
}

// ── Pending uploads (in-memory only) ────────────────────────────────

func (s *Store) AddPendingUpload(trackID string, upload PendingUpload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingUploads[trackID] = upload
}

func (s *Store) RemovePendingUpload(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingUploads, trackID)
}

// PendingUploads returns a snapshot copy of the pending-uploads map.
func (s *Store) PendingUploads() map[string]PendingUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PendingUpload, len(s.pendingUploads))
	for k, v := range s.pendingUploads {
		out[k] = v
	}
	return out
}

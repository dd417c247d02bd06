// Package backend implements the Backend capability against the RAG
// ingest service's REST interface: multipart upload, status listing, and
// delete-by-id. It is grounded on the original LightRagClient.java, ported
// from Spring's RestClient to stdlib net/http, since no HTTP client library
// appears anywhere in the retrieval pack (see DESIGN.md).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/hints"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// Status values reported by the backend. Statuses are always lowercased on
// read, per spec.md §4.2.
const (
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
)

// DocumentInfo is the backend's view of one document.
type DocumentInfo struct {
	ID        string
	FilePath  string
	CreatedAt string
	TrackID   string
	Status    string
	ErrorMsg  string
}

// BusyError is the distinguished, retriable condition reported by the
// backend when it cannot process a delete because it is busy ingesting.
// It is the ONLY branch of Backend.Delete that the sync engine treats as
// transient; every other error is a generic failure.
type BusyError struct {
	DocID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("backend is busy, delete of document %s deferred", e.DocID)
}

// IsBusy reports whether err is, or wraps, a *BusyError.
func IsBusy(err error) bool {
	var busy *BusyError
	return errors.As(err, &busy)
}

// Backend is the capability the sync engine drives against the ingest
// service. Implementations must be safe for sequential, single-goroutine
// use (the engine never calls concurrently, per spec.md §5).
type Backend interface {
	// Upload submits a local file for ingestion and returns the backend's
	// tracking id, or "" if the backend accepted the request but returned
	// no id.
	Upload(ctx context.Context, path string) (trackID string, err error)
	// List returns the aggregated document view across all statuses.
	List(ctx context.Context) ([]DocumentInfo, error)
	// Delete removes a document by id. Returns a *BusyError when the
	// backend is currently processing and cannot service the delete.
	Delete(ctx context.Context, docID string) error
}

// HTTPClient is the concrete Backend implementation talking to the ingest
// service's REST interface.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs an HTTPClient. baseURL should not have a trailing slash;
// apiKey may be empty.
func New(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

type uploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TrackID string `json:"track_id"`
}

// Upload submits a multipart POST to /documents/upload.
func (c *HTTPClient) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for upload: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copying file into multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/documents/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", hints.WrapKind(fmt.Errorf("upload request: %w", err), hints.TransientIO)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed: backend returned status %d", resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}

	plog.Info("uploaded document", "path", filepath.Base(path), "trackId", parsed.TrackID)
	if parsed.TrackID == "" {
		plog.Warn("backend accepted upload but returned no track id", "path", filepath.Base(path))
	}
	return parsed.TrackID, nil
}

type documentsResponse struct {
	Statuses map[string][]documentInfoWire `json:"statuses"`
}

type documentInfoWire struct {
	ID        string `json:"id"`
	FilePath  string `json:"file_path"`
	CreatedAt string `json:"created_at"`
	TrackID   string `json:"track_id"`
	ErrorMsg  string `json:"error_msg"`
}

// List fetches the status-grouped document listing and flattens it,
// lowercasing status keys per spec.md §4.2.
func (c *HTTPClient) List(ctx context.Context) ([]DocumentInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, hints.WrapKind(fmt.Errorf("list request: %w", err), hints.TransientIO)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list failed: backend returned status %d", resp.StatusCode)
	}

	var parsed documentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}

	var docs []DocumentInfo
	for status, wireDocs := range parsed.Statuses {
		lowered := strings.ToLower(status)
		for _, d := range wireDocs {
			docs = append(docs, DocumentInfo{
				ID:        d.ID,
				FilePath:  d.FilePath,
				CreatedAt: d.CreatedAt,
				TrackID:   d.TrackID,
				Status:    lowered,
				ErrorMsg:  d.ErrorMsg,
			})
		}
	}
	return docs, nil
}

type deleteRequest struct {
	DocIDs []string `json:"doc_ids"`
}

type deleteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Delete issues a DELETE /documents/delete_document for a single doc id.
func (c *HTTPClient) Delete(ctx context.Context, docID string) error {
	payload, err := json.Marshal(deleteRequest{DocIDs: []string{docID}})
	if err != nil {
		return fmt.Errorf("marshaling delete request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "/documents/delete_document", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return hints.WrapKind(fmt.Errorf("delete request: %w", err), hints.TransientIO)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete failed: backend returned status %d", resp.StatusCode)
	}

	var parsed deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decoding delete response: %w", err)
	}

	if strings.EqualFold(parsed.Status, "busy") {
		return &BusyError{DocID: docID}
	}

	plog.Info("deleted document", "docId", docID, "status", parsed.Status)
	return nil
}

// ByStatus groups a flat document list by status, mirroring
// LightRagClient.getDocumentsByStatus() for callers (e.g. resolveDocId)
// that need the failed bucket specifically before scanning everything.
func ByStatus(docs []DocumentInfo) map[string][]DocumentInfo {
	grouped := make(map[string][]DocumentInfo)
	for _, d := range docs {
		grouped[d.Status] = append(grouped[d.Status], d)
	}
	return grouped
}

package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/hints"
)

func TestUploadReturnsTrackID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/upload" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "track_id": "T1"})
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	c := backend.New(srv.URL, "", 5*time.Second)
	trackID, err := c.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if trackID != "T1" {
		t.Errorf("Upload() trackID = %q, want T1", trackID)
	}
}

func TestListFlattensAndLowercasesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"statuses": map[string]any{
				"PROCESSED": []map[string]string{
					{"id": "D1", "file_path": "/x/a.pdf", "track_id": "T1"},
				},
				"failed": []map[string]string{
					{"id": "D2", "file_path": "/x/b.pdf", "error_msg": "empty"},
				},
			},
		})
	}))
	defer srv.Close()

	c := backend.New(srv.URL, "", 5*time.Second)
	docs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List() returned %d docs, want 2", len(docs))
	}
	byID := map[string]backend.DocumentInfo{}
	for _, d := range docs {
		byID[d.ID] = d
	}
	if byID["D1"].Status != "processed" {
		t.Errorf("D1 status = %q, want processed", byID["D1"].Status)
	}
	if byID["D2"].Status != "failed" || byID["D2"].ErrorMsg != "empty" {
		t.Errorf("D2 = %+v, want status=failed errorMsg=empty", byID["D2"])
	}
}

func TestDeleteBusyReturnsBusyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "busy", "message": "processing"})
	}))
	defer srv.Close()

	c := backend.New(srv.URL, "", 5*time.Second)
	err := c.Delete(context.Background(), "D1")
	if !backend.IsBusy(err) {
		t.Fatalf("Delete() error = %v, want a *BusyError", err)
	}
}

func TestDeleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}))
	defer srv.Close()

	c := backend.New(srv.URL, "", 5*time.Second)
	if err := c.Delete(context.Background(), "D1"); err != nil {
		t.Fatalf("Delete() error = %v, want nil", err)
	}
}

func TestListConnectionFailureIsHinted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing is listening on url anymore

	c := backend.New(url, "", 1*time.Second)
	_, err := c.List(context.Background())
	if err == nil {
		t.Fatal("List() error = nil, want a connection failure")
	}
	if !hints.IsHint(err) {
		t.Errorf("List() error %v is not hinted, want a transient-I/O hint", err)
	}
}

func TestByStatus(t *testing.T) {
	docs := []backend.DocumentInfo{
		{ID: "D1", Status: "processed"},
		{ID: "D2", Status: "failed"},
		{ID: "D3", Status: "processed"},
	}
	grouped := backend.ByStatus(docs)
	if len(grouped["processed"]) != 2 {
		t.Errorf("processed bucket len = %d, want 2", len(grouped["processed"]))
	}
	if len(grouped["failed"]) != 1 {
		t.Errorf("failed bucket len = %d, want 1", len(grouped["failed"]))
	}
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQueryObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/objects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		q := r.URL.Query()
		if q.Get("type") != "hostname" || q.Get("min_clearance") != "2" {
			t.Errorf("unexpected query %v", q)
		}
		_ = json.NewEncoder(w).Encode([]Object{
			{Key: "example.com", Type: "hostname", Clearance: 2},
			{Key: "example.org", Type: "hostname", Clearance: 4},
		})
	}))
	defer srv.Close()

	client := NewWithToken(srv.URL, "service-token", 5*time.Second)
	objects, err := client.QueryObjects(context.Background(), "hostname", "", 2)
	if err != nil {
		t.Fatalf("QueryObjects: %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "example.com" {
		t.Fatalf("unexpected objects: %+v", objects)
	}
}

func TestQueryObjects_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "token does not grant object:query"}}`))
	}))
	defer srv.Close()

	client := NewWithToken(srv.URL, "bad-token", 5*time.Second)
	_, err := client.QueryObjects(context.Background(), "hostname", "", 0)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "object:query") {
		t.Errorf("expected server message, got %q", apiErr.Message)
	}
}

func TestCreateFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/files" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-File-Name") != "nuclei-output.json" {
			t.Errorf("unexpected file name %q", r.Header.Get("X-File-Name"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"findings": []}` {
			t.Errorf("unexpected body %q", body)
		}
		_ = json.NewEncoder(w).Encode(File{Key: "file-123", Name: "nuclei-output.json", Type: "nuclei", Size: int64(len(body))})
	}))
	defer srv.Close()

	client := NewWithToken(srv.URL, "cap-token", 5*time.Second)
	file, err := client.CreateFile(context.Background(), "nuclei-output.json", "nuclei", strings.NewReader(`{"findings": []}`))
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if file.Key != "file-123" {
		t.Errorf("unexpected file key %q", file.Key)
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files/file-123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("raw output"))
	}))
	defer srv.Close()

	client := NewWithToken(srv.URL, "cap-token", 5*time.Second)
	body, err := client.DownloadFile(context.Background(), "file-123")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	defer body.Close()

	content, _ := io.ReadAll(body)
	if string(content) != "raw output" {
		t.Errorf("unexpected content %q", content)
	}
}

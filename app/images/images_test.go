package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_WriteAndRemove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	name, err := store.Write("the-matrix-poster.jpg", []byte("image-bytes"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if name != "the-matrix-poster.jpg" {
		t.Errorf("Unexpected stored name: %q", name)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), name))
	if err != nil {
		t.Fatalf("Expected stored file to exist: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("Unexpected file contents: %q", data)
	}

	if err := store.Remove(name); err != nil {
		t.Fatalf("Expected no error on remove, got %v", err)
	}

	// Removing twice must not fail.
	if err := store.Remove(name); err != nil {
		t.Errorf("Expected missing file to be tolerated, got %v", err)
	}
}

func TestTinifyOptimizer_ShrinksViaLocationHeader(t *testing.T) {
	var shrinkAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shrink":
			_, pass, _ := r.BasicAuth()
			shrinkAuth = pass
			w.Header().Set("Location", "http://"+r.Host+"/output/abc")
			w.WriteHeader(http.StatusCreated)
		case "/output/abc":
			w.Write([]byte("tiny"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	optimizer := NewTinifyOptimizer("secret-key", 5*time.Second)
	optimizer.SetAPIURL(server.URL + "/shrink")

	data, err := optimizer.Optimize(context.Background(), []byte("big-image"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if string(data) != "tiny" {
		t.Errorf("Expected optimized blob, got %q", data)
	}
	if shrinkAuth != "secret-key" {
		t.Errorf("Expected API key as basic auth password, got %q", shrinkAuth)
	}
}

func TestTinifyOptimizer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	optimizer := NewTinifyOptimizer("bad-key", time.Second)
	optimizer.SetAPIURL(server.URL + "/shrink")

	if _, err := optimizer.Optimize(context.Background(), []byte("data")); err == nil {
		t.Error("Expected error for rejected upload")
	}
}

func TestFetcher_DownloadsOptimizesAndStores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("poster-bytes"))
	}))
	defer server.Close()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	fetcher := NewFetcher(NoopOptimizer{}, store, "Vril/test", 5*time.Second)

	name, err := fetcher.Fetch(context.Background(), server.URL+"/abc.jpg", "The Matrix", "poster")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if name != "the-matrix-poster.jpg" {
		t.Errorf("Unexpected stored name: %q", name)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), name))
	if err != nil {
		t.Fatalf("Expected stored file: %v", err)
	}
	if string(data) != "poster-bytes" {
		t.Errorf("Unexpected contents: %q", data)
	}
}

func TestFetcher_RejectsOversizedImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, maxImageBytes+1))
	}))
	defer server.Close()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	fetcher := NewFetcher(NoopOptimizer{}, store, "Vril/test", 30*time.Second)

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/huge.jpg", "Huge", "poster"); err == nil {
		t.Error("Expected error for oversized image")
	}
}

type failingOptimizer struct{}

func (failingOptimizer) Optimize(_ context.Context, _ []byte) ([]byte, error) {
	return nil, context.DeadlineExceeded
}

func TestFetcher_OptimizerFailureFallsBackToOriginal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("original"))
	}))
	defer server.Close()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	fetcher := NewFetcher(failingOptimizer{}, store, "Vril/test", 5*time.Second)

	name, err := fetcher.Fetch(context.Background(), server.URL+"/x.jpg", "Alien", "backdrop")
	if err != nil {
		t.Fatalf("Expected fallback, got %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(store.Dir(), name))
	if string(data) != "original" {
		t.Errorf("Expected original blob, got %q", data)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title    string
		kind     string
		url      string
		expected string
	}{
		{"The Matrix", "poster", "/abc.jpg", "the-matrix-poster.jpg"},
		{"Amélie!", "backdrop", "/def.png", "am-lie-backdrop.png"},
		{"", "poster", "/x", "untitled-poster.jpg"},
	}

	for _, tt := range tests {
		if got := FileName(tt.title, tt.kind, tt.url); got != tt.expected {
			t.Errorf("FileName(%q, %q, %q) = %q, expected %q", tt.title, tt.kind, tt.url, got, tt.expected)
		}
	}
}

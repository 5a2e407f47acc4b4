package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch_RetriesTemporaryStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{MaxRetries: 3, Backoff: time.Millisecond})
	data, err := c.Fetch(context.Background(), srv.URL+"/font.css")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("data = %q", data)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{MaxRetries: 3, Backoff: time.Millisecond})
	_, err := c.Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 StatusError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestFetch_SizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := New(Options{MaxBytes: 16, Backoff: time.Millisecond})
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected size cap error")
	}
}

func TestFetch_BlockLocal(t *testing.T) {
	c := New(Options{BlockLocal: true})
	if _, err := c.Fetch(context.Background(), "http://127.0.0.1:1/x"); err == nil {
		t.Fatal("expected loopback to be blocked")
	}
}

func TestFetch_DataURI(t *testing.T) {
	c := New(Options{})
	data, err := c.Fetch(context.Background(), "data:text/plain;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
	data, err = c.Fetch(context.Background(), "data:text/css,a%20b")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "a b" {
		t.Errorf("data = %q", data)
	}
}

func TestFetch_FileURL(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(p, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := New(Options{}).Fetch(context.Background(), "file://"+filepath.ToSlash(p))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "local" {
		t.Errorf("data = %q", data)
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), "ftp://example.com/a")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err = %v, want ErrUnsupportedScheme", err)
	}
}

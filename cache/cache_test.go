package cache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFetchDownloadsThenServesFromCacheOn304(t *testing.T) {
	var etag = `"abc123"`
	hits := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Write([]byte(`{"aaa":{"conda_name":"numpy"}}`))
	}))
	defer svr.Close()

	c, err := New(svr.Client(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	data, status, err := c.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusFresh {
		t.Fatalf("expected first fetch to be fresh, got %s", status)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty body")
	}

	data2, status2, err := c.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL)
	if err != nil {
		t.Fatal(err)
	}
	if status2 != StatusUpToDate {
		t.Fatalf("expected second fetch to be up to date, got %s", status2)
	}
	if string(data2) != string(data) {
		t.Errorf("expected cached data to match original: %s vs %s", data2, data)
	}
	if hits != 2 {
		t.Errorf("expected exactly 2 upstream requests, got %d", hits)
	}
}

func TestFetchNotFound(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer svr.Close()

	c, err := New(svr.Client(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, status, err := c.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusNotFound {
		t.Errorf("expected not found status, got %s", status)
	}
}

func TestFetchFallsBackToStaleCacheOnNetworkError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aaa":{"conda_name":"numpy"}}`))
	}))
	dir := t.TempDir()
	c, err := New(svr.Client(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, status, err := c.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL); err != nil || status != StatusFresh {
		t.Fatalf("expected initial fresh fetch, got %s, %v", status, err)
	}
	svr.Close()

	data, status, err := c.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusStale {
		t.Fatalf("expected stale status after server shutdown, got %s", status)
	}
	if len(data) == 0 {
		t.Error("expected stale cached data to be non-empty")
	}
}

func TestNewCreatesDefaultXDGDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	c, err := New(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "conda-pypi-map")
	if c.Dir != want {
		t.Errorf("expected cache dir %q, got %q", want, c.Dir)
	}
	if _, err := os.Stat(c.Dir); err != nil {
		t.Errorf("expected cache dir to exist: %v", err)
	}
}

func TestNewSharedPersistsValidatorsAcrossInstances(t *testing.T) {
	var etag = `"shared-etag"`
	hits := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Write([]byte(`{"bbb":{"conda_name":"scipy"}}`))
	}))
	defer svr.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shared.db")

	c1, err := NewShared(svr.Client(), dir, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, status, err := c1.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL); err != nil || status != StatusFresh {
		t.Fatalf("expected first fetch to be fresh, got %s, %v", status, err)
	}

	// A second Cache instance pointed at the same shared database must
	// see the validator the first instance saved.
	c2, err := NewShared(svr.Client(), dir, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, status, err := c2.Fetch(zerolog.Nop(), "conda-forge", svr.URL, svr.URL); err != nil || status != StatusUpToDate {
		t.Fatalf("expected second instance to see shared validator and get up to date, got %s, %v", status, err)
	}
	if hits != 2 {
		t.Errorf("expected exactly 2 upstream requests, got %d", hits)
	}
}

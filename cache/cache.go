// Package cache implements the C11 index cache: an XDG-style local
// filesystem cache for a channel's canonical index, using conditional
// HTTP requests (If-None-Match/If-Modified-Since) to avoid re-fetching
// unchanged data. Grounded on the original system's index_cache.py
// cache-path and .meta-sidecar scheme, with conditional-header handling
// generalized from claircore's enricher/kev/kev.go Last-Modified hint
// idiom.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Status reports the outcome of one Fetch call.
type Status string

const (
	StatusUpToDate Status = "cached (up to date)"
	StatusStale    Status = "cached (stale)"
	StatusFresh    Status = "downloaded"
	StatusNotFound Status = "not found"
	StatusFailed   Status = "failed"
)

// Cache is a local, on-disk cache of one or more channels' index JSON,
// validated against an upstream URL via conditional GET.
type Cache struct {
	HTTP *http.Client
	Dir  string

	// metaStore holds cached ETag/Last-Modified validators. Defaults to
	// one .meta sidecar file per (channel, baseURL); set via NewShared
	// to back it with a single shared SQLite table instead, for
	// deployments running many channel caches against one cache
	// directory.
	metaStore metaStore
}

type meta struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// metaStore persists the conditional-request validators keyed by cache
// entry stem (the same "index_<channel>_<hash>" stem used for the data
// file).
type metaStore interface {
	Load(key string) meta
	Save(key string, m meta) error
}

// New builds a Cache rooted at dir. If dir is empty, the XDG cache
// directory is used: $XDG_CACHE_HOME/conda-pypi-map, falling back to
// $HOME/.cache/conda-pypi-map. Validators are kept in per-entry .meta
// sidecar files; use NewShared for a single shared SQLite table.
func New(hc *http.Client, dir string) (*Cache, error) {
	c, err := newCache(hc, dir)
	if err != nil {
		return nil, err
	}
	c.metaStore = fileMetaStore{dir: c.Dir}
	return c, nil
}

// NewShared builds a Cache like New, but keeps conditional-request
// validators in a single SQLite database at dbPath rather than one
// .meta file per entry — useful when several processes or channel
// runs share one cache directory and a directory listing sidecar file
// per entry would be wasteful to fsync independently.
func NewShared(hc *http.Client, dir, dbPath string) (*Cache, error) {
	c, err := newCache(hc, dir)
	if err != nil {
		return nil, err
	}
	store, err := openSQLiteMetaStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: opening shared meta store: %w", err)
	}
	c.metaStore = store
	return c, nil
}

func newCache(hc *http.Client, dir string) (*Cache, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if dir == "" {
		d, err := defaultCacheDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating cache dir: %w", err)
	}
	return &Cache{HTTP: hc, Dir: dir}, nil
}

func defaultCacheDir() (string, error) {
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, "conda-pypi-map"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cache: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "conda-pypi-map"), nil
}

// stemAndDataPath returns this cache's entry key and data file path for
// one (channel, baseURL) pair, matching the upstream scheme of an
// 8-hex-char MD5 digest of baseURL disambiguating multiple mirrors of
// one channel.
func (c *Cache) stemAndDataPath(channel, baseURL string) (stem, dataPath string) {
	sum := md5.Sum([]byte(baseURL))
	urlHash := hex.EncodeToString(sum[:])[:8]
	stem = fmt.Sprintf("index_%s_%s", channel, urlHash)
	return stem, filepath.Join(c.Dir, stem+".json")
}

// Fetch retrieves url's body with conditional caching, writing the
// result to this cache's channel/baseURL-keyed file, and returns the
// raw bytes served (from cache or network) plus a Status describing how
// they were obtained.
func (c *Cache) Fetch(log zerolog.Logger, channel, baseURL, url string) ([]byte, Status, error) {
	stem, dataPath := c.stemAndDataPath(channel, baseURL)

	cached := c.metaStore.Load(stem)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, StatusFailed, err
	}
	if cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}
	if cached.LastModified != "" {
		req.Header.Set("If-Modified-Since", cached.LastModified)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("index fetch failed, falling back to cache")
		return loadStale(dataPath)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusNotModified:
		data, err := os.ReadFile(dataPath)
		if err != nil {
			log.Warn().Err(err).Msg("got 304 but cache file missing, treating as stale miss")
			return nil, StatusFailed, nil
		}
		return data, StatusUpToDate, nil
	case http.StatusNotFound:
		return nil, StatusNotFound, nil
	case http.StatusOK:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, StatusFailed, fmt.Errorf("cache: reading response body: %w", err)
		}
		if err := writeAtomic(dataPath, body); err != nil {
			return nil, StatusFailed, err
		}
		if err := c.metaStore.Save(stem, meta{
			ETag:         res.Header.Get("ETag"),
			LastModified: res.Header.Get("Last-Modified"),
		}); err != nil {
			log.Warn().Err(err).Msg("saving cache validator metadata")
		}
		return body, StatusFresh, nil
	default:
		return nil, StatusFailed, fmt.Errorf("cache: unexpected status %s fetching %s", res.Status, url)
	}
}

func loadStale(dataPath string) ([]byte, Status, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, StatusFailed, nil
	}
	return data, StatusStale, nil
}

// fileMetaStore is the default metaStore: one .meta JSON sidecar file
// per cache entry, matching the original system's index_cache.py
// layout exactly.
type fileMetaStore struct {
	dir string
}

func (f fileMetaStore) Load(key string) meta {
	data, err := os.ReadFile(filepath.Join(f.dir, key+".meta"))
	if err != nil {
		return meta{}
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}
	}
	return m
}

func (f fileMetaStore) Save(key string, m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(f.dir, key+".meta"), data)
}

// writeAtomic writes data to path via a temp-file-then-rename, so a
// concurrent reader never observes a partially written cache file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cache: renaming temp file into place: %w", err)
	}
	return nil
}

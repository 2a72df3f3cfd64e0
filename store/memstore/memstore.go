// Package memstore is an in-process, map-backed implementation of
// [store.Gateway]. It exists for tests and for local check-one/remover
// runs; production deployments supply a real S3/R2-backed Gateway
// externally.
package memstore

import (
	"context"
	"encoding/json"
	"maps"
	"sort"
	"sync"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/store"
)

type object struct {
	body          []byte
	contentSHA256 string
}

// Store is a concurrency-safe, in-memory [store.Gateway].
type Store struct {
	mu      sync.RWMutex
	index   map[string]condapypi.IndexMapping
	mapping map[string]condapypi.MappingEntry
	blobs   map[string]object
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		index:   make(map[string]condapypi.IndexMapping),
		mapping: make(map[string]condapypi.MappingEntry),
		blobs:   make(map[string]object),
	}
}

var _ store.Gateway = (*Store)(nil)

func notFound(op string) error {
	return &condapypi.Error{Kind: condapypi.ErrNotFound, Op: op, Message: "object not found"}
}

func (s *Store) GetIndex(_ context.Context, channel string) (condapypi.IndexMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[channel]
	if !ok {
		return nil, notFound("memstore.GetIndex")
	}
	out := make(condapypi.IndexMapping, len(idx))
	maps.Copy(out, idx)
	return out, nil
}

func (s *Store) PutIndex(_ context.Context, channel string, idx condapypi.IndexMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(condapypi.IndexMapping, len(idx))
	maps.Copy(cp, idx)
	s.index[channel] = cp
	return nil
}

func (s *Store) PutMapping(_ context.Context, hash string, entry condapypi.MappingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping[hash] = entry
	return nil
}

func (s *Store) DeleteHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mapping, hash)
	return nil
}

// Mapping returns the stored MappingEntry for hash, for test assertions.
func (s *Store) Mapping(hash string) (condapypi.MappingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.mapping[hash]
	return e, ok
}

func (s *Store) PutRelationsTable(_ context.Context, channel string, gzippedJSONL []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[store.RelationsTableKey(channel)] = object{body: gzippedJSONL}
	return nil
}

func (s *Store) PutRelationsMetadata(_ context.Context, channel string, jsonBody []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[store.RelationsMetadataKey(channel)] = object{body: jsonBody}
	return nil
}

// RelationsTable returns the raw bytes previously stored via
// PutRelationsTable, for test assertions.
func (s *Store) RelationsTable(channel string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.blobs[store.RelationsTableKey(channel)]
	return o.body, ok
}

func (s *Store) PutPyPILookup(_ context.Context, channel, pypiName string, body []byte, contentSHA256 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[store.LookupKey(channel, pypiName)] = object{body: body, contentSHA256: contentSHA256}
	return nil
}

func (s *Store) GetPyPILookup(_ context.Context, channel, pypiName string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.blobs[store.LookupKey(channel, pypiName)]
	if !ok {
		return nil, notFound("memstore.GetPyPILookup")
	}
	return o.body, nil
}

func (s *Store) HeadPyPILookupHash(_ context.Context, channel, pypiName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.blobs[store.LookupKey(channel, pypiName)]
	if !ok {
		return "", notFound("memstore.HeadPyPILookupHash")
	}
	return o.contentSHA256, nil
}

func (s *Store) ListPyPILookupNames(_ context.Context, channel string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := store.LookupPrefix(channel)
	var names []string
	for k := range s.blobs {
		if name, ok := stripLookupKey(k, prefix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DeletePyPILookup(_ context.Context, channel, pypiName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, store.LookupKey(channel, pypiName))
	return nil
}

func stripLookupKey(key, prefix string) (string, bool) {
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	name := key[len(prefix):]
	const suffix = ".json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}

// MustMarshal is a small test helper mirroring the encode step real
// Gateway callers perform before calling PutPyPILookup/PutRelationsTable.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

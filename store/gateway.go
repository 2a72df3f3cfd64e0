// Package store defines the object-store contract this system depends
// on. The concrete S3/R2 client is an external collaborator; this
// package only specifies the interface and key layout, plus an
// in-process implementation for tests.
package store

import (
	"context"

	"github.com/prefix-dev/conda-pypi-map"
)

// Gateway is the typed read/write contract a concrete object-store
// client must implement. Every method is expected to be idempotent and
// safe to retry.
type Gateway interface {
	// GetIndex returns the canonical IndexMapping for channel, or
	// ([condapypi.ErrNotFound]) if none has been published yet.
	GetIndex(ctx context.Context, channel string) (condapypi.IndexMapping, error)
	// PutIndex writes the canonical IndexMapping for channel.
	PutIndex(ctx context.Context, channel string, idx condapypi.IndexMapping) error

	// PutMapping writes a single per-hash MappingEntry.
	PutMapping(ctx context.Context, hash string, entry condapypi.MappingEntry) error

	// PutRelationsTable writes the gzipped NDJSON bytes of a channel's
	// RelationsTable.
	PutRelationsTable(ctx context.Context, channel string, gzippedJSONL []byte) error
	// PutRelationsMetadata writes a channel's RelationsMetadata as JSON.
	PutRelationsMetadata(ctx context.Context, channel string, json []byte) error

	// PutPyPILookup stores a PyPIPackageLookup's serialized bytes,
	// attaching contentSHA256 as user-visible object metadata.
	PutPyPILookup(ctx context.Context, channel, pypiName string, body []byte, contentSHA256 string) error
	// GetPyPILookup returns a lookup's serialized bytes, or
	// [condapypi.ErrNotFound] if absent.
	GetPyPILookup(ctx context.Context, channel, pypiName string) ([]byte, error)
	// HeadPyPILookupHash returns the stored content_sha256 metadata for
	// a lookup without fetching its body, or [condapypi.ErrNotFound] if
	// the object is absent. An object present without the metadata
	// (a legacy write) returns an empty string and no error.
	HeadPyPILookupHash(ctx context.Context, channel, pypiName string) (string, error)
	// ListPyPILookupNames lists every pypi_name with a published lookup
	// under channel.
	ListPyPILookupNames(ctx context.Context, channel string) ([]string, error)
	// DeletePyPILookup removes a channel's lookup object for pypiName.
	DeletePyPILookup(ctx context.Context, channel, pypiName string) error

	// DeleteHash removes a per-hash MappingEntry object.
	DeleteHash(ctx context.Context, hash string) error
}

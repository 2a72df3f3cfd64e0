package store

import "fmt"

// Object key layout, resolved from the original system's S3/R2 key
// scheme: a "hash-v0" prefix for per-artifact and per-channel index
// objects, "relations-v1" for the denormalized relations table, and
// "pypi-to-conda-v1" for the inverted per-PyPI-name lookup objects.
const (
	hashPrefix      = "hash-v0"
	relationsPrefix = "relations-v1"
	lookupPrefix    = "pypi-to-conda-v1"
)

// MappingKey is the object key for a single artifact's MappingEntry.
func MappingKey(hash string) string {
	return hashPrefix + "/" + hash
}

// IndexKey is the object key for a channel's canonical IndexMapping
// snapshot.
func IndexKey(channel string) string {
	return fmt.Sprintf("%s/%s/index.json", hashPrefix, channel)
}

// RelationsTableKey is the object key for a channel's gzipped NDJSON
// relations table.
func RelationsTableKey(channel string) string {
	return fmt.Sprintf("%s/%s/relations.jsonl.gz", relationsPrefix, channel)
}

// RelationsMetadataKey is the object key for a channel's relations
// metadata object.
func RelationsMetadataKey(channel string) string {
	return fmt.Sprintf("%s/%s/metadata.json", relationsPrefix, channel)
}

// LookupKey is the object key for one channel's PyPI package lookup.
func LookupKey(channel, pypiName string) string {
	return fmt.Sprintf("%s/%s/%s.json", lookupPrefix, channel, pypiName)
}

// LookupPrefix is the common prefix under which all of a channel's
// lookup objects live, used for listing and stale-deletion sweeps.
func LookupPrefix(channel string) string {
	return fmt.Sprintf("%s/%s/", lookupPrefix, channel)
}

package condapypi

import "fmt"

// MappingEntry is the core record of this system, keyed by the sha256 of
// a conda artifact. It records which PyPI distributions, at which
// versions, that artifact carries, and under what origin.
//
// Invariant: PyPINormalizedNames is nil iff Versions is nil; when both are
// present their key sets are identical. Use [NewMappingEntry] rather than
// constructing this struct directly so that invariant is enforced.
type MappingEntry struct {
	// CondaName is the name declared inside the artifact's index.json.
	CondaName string `json:"conda_name"`
	// PackageName is the artifact filename.
	PackageName string `json:"package_name"`
	// PyPINormalizedNames is an ordered list of PEP 503 normalized PyPI
	// names found inside the artifact. May be nil.
	PyPINormalizedNames []string `json:"pypi_normalized_names,omitempty"`
	// Versions maps a PyPI normalized name to its version string. Same
	// keys as PyPINormalizedNames when present.
	Versions map[string]string `json:"versions,omitempty"`
	// DirectURL is an ordered list of source URLs, present only when
	// none of the rendered recipe's source URLs point at pypi.io,
	// pypi.org, or pypi.python.org.
	DirectURL []string `json:"direct_url,omitempty"`
}

// NewMappingEntry builds a MappingEntry, validating that names and
// versions agree on key set.
func NewMappingEntry(condaName, packageName string, names []string, versions map[string]string, directURL []string) (MappingEntry, error) {
	e := MappingEntry{
		CondaName:   condaName,
		PackageName: packageName,
	}
	switch {
	case len(names) == 0 && len(versions) == 0:
		// Both absent: artifact carries no PyPI evidence.
	case len(names) == 0 || len(versions) == 0:
		return MappingEntry{}, &Error{
			Kind:    ErrInvalid,
			Op:      "NewMappingEntry",
			Message: fmt.Sprintf("%s: names and versions must both be present or both absent", packageName),
		}
	default:
		if len(names) != len(versions) {
			return MappingEntry{}, &Error{
				Kind:    ErrInvalid,
				Op:      "NewMappingEntry",
				Message: fmt.Sprintf("%s: names/versions key-set mismatch: %d names, %d versions", packageName, len(names), len(versions)),
			}
		}
		for _, n := range names {
			if _, ok := versions[n]; !ok {
				return MappingEntry{}, &Error{
					Kind:    ErrInvalid,
					Op:      "NewMappingEntry",
					Message: fmt.Sprintf("%s: name %q has no corresponding version", packageName, n),
				}
			}
		}
		e.PyPINormalizedNames = names
		e.Versions = versions
	}
	if len(directURL) > 0 {
		e.DirectURL = directURL
	}
	return e, nil
}

// HasPyPINames reports whether this entry carries any PyPI distribution
// evidence.
func (e MappingEntry) HasPyPINames() bool {
	return len(e.PyPINormalizedNames) > 0
}

// IndexMapping is a per-channel mapping from artifact sha256 to
// MappingEntry. No hash is ever silently mutated to a different
// CondaName or PackageName: callers overwriting an existing key must
// preserve those two fields or reject the write.
type IndexMapping map[string]MappingEntry

// PartialIndex has the same shape as IndexMapping, scoped to one shard
// (subdir, first letter).
type PartialIndex map[string]MappingEntry

// Merge folds src into dst, returning an error if any shared key would
// change CondaName or PackageName. Callers merging disjoint shards (the
// normal case) never hit the conflict path.
func (dst IndexMapping) Merge(src IndexMapping) error {
	for hash, entry := range src {
		if existing, ok := dst[hash]; ok {
			if existing.CondaName != entry.CondaName || existing.PackageName != entry.PackageName {
				return &Error{
					Kind: ErrConflict,
					Op:   "IndexMapping.Merge",
					Message: fmt.Sprintf("hash %s: refusing to rename %s/%s to %s/%s",
						hash, existing.CondaName, existing.PackageName, entry.CondaName, entry.PackageName),
				}
			}
		}
		dst[hash] = entry
	}
	return nil
}

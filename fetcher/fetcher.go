// Package fetcher defines the shared ArtifactInfo type, the Backend
// interface, and the fallback-trigger error class for the four
// interchangeable conda artifact backends (§4.2): oci, rangefetch,
// fulldownload, legacy.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prefix-dev/conda-pypi-map"
)

// ArtifactInfo is the parsed result of fetching and unpacking a single
// conda artifact.
type ArtifactInfo struct {
	Name    string
	Version string

	// Index and About are the raw info/index.json and info/about.json
	// bytes.
	Index []byte
	About []byte

	// RenderedRecipe is the parsed meta.yaml/recipe.yaml document (see
	// ParseRecipe: a document with a repeated mapping key fails to parse).
	// RawRecipe is the unexpanded meta.yaml.template when both forms exist.
	RenderedRecipe map[string]any
	RawRecipe      []byte

	CondaBuildConfig []byte

	// Files is the payload file list, already filtered of .pyc/.txt
	// suffixes.
	Files []string
}

// Backend fetches and unpacks a single conda artifact.
type Backend interface {
	Fetch(ctx context.Context, ref condapypi.ArtifactRef) (*ArtifactInfo, error)
}

// Name identifies one of the four backends, used for explicit backend
// selection (e.g. check-one --backend) and for logging.
type Name string

const (
	OCI         Name = "oci"
	RangeStream Name = "streamed"
	FullDownload Name = "full"
	Legacy      Name = "libcfgraph"
)

// FallbackTriggerError marks a rangefetch failure that must downgrade to
// the full-download backend for a .tar.bz2 artifact, per spec.md §4.2.
// Any other error from a backend propagates as-is.
type FallbackTriggerError struct {
	Inner error
}

func (e *FallbackTriggerError) Error() string {
	return "fetcher: fallback-triggering error: " + e.Inner.Error()
}

func (e *FallbackTriggerError) Unwrap() error { return e.Inner }

// fallbackSubstrings is the declared set of error conditions that
// trigger downgrading range-streamed .tar.bz2 fetches to a full
// download: YAML tokenizer errors, and the archive/tar/bzip2 failure
// modes named in spec.md §4.2.
var fallbackSubstrings = []string{
	"yaml",
	"invalid data stream",
	"invalid header",
	"truncated",
	"bzip2 data invalid",
}

// IsFallbackTrigger reports whether err's message matches one of the
// declared fallback-triggering conditions.
func IsFallbackTrigger(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range fallbackSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// WrapFallback wraps err as a *FallbackTriggerError if it matches a
// declared fallback condition, else returns it unchanged.
func WrapFallback(err error) error {
	if err == nil {
		return nil
	}
	if IsFallbackTrigger(err) {
		return &FallbackTriggerError{Inner: err}
	}
	return err
}

// URLFor builds the direct-download URL for ref under channel's primary
// base URL, the layout both the rangefetch and fulldownload backends
// fetch from: {base}/{subdir}/{filename}.
func URLFor(ch condapypi.Channel, ref condapypi.ArtifactRef) string {
	base := ""
	if len(ch.BaseURLs) > 0 {
		base = strings.TrimRight(ch.BaseURLs[0], "/")
	}
	return fmt.Sprintf("%s/%s/%s", base, ref.Subdir, ref.Filename)
}

// IsTarBz2 reports whether filename has the legacy .tar.bz2 extension.
func IsTarBz2(filename string) bool {
	return strings.HasSuffix(filename, ".tar.bz2")
}

// ParseRecipe parses a rendered meta.yaml/recipe.yaml document. Duplicate
// keys are not tolerated: yaml.v3 rejects a mapping with a repeated key,
// so such a document returns an error.
func ParseRecipe(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fetcher: parsing recipe yaml: %w", err)
	}
	return doc, nil
}

// IndexNameVersion extracts the conda package name and version declared
// in an artifact's info/index.json, used uniformly by every backend to
// populate ArtifactInfo.Name/Version.
func IndexNameVersion(raw []byte) (name, version string) {
	if len(raw) == 0 {
		return "", ""
	}
	var doc struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", ""
	}
	return doc.Name, doc.Version
}

// Choose picks a backend per spec.md §4.7: conda-forge .tar.bz2 prefers
// OCI; labelled channels without range support use full download; else
// range-streamed.
func Choose(channel string, supportsRange, labelled bool, filename string) Name {
	switch {
	case channel == "conda-forge" && IsTarBz2(filename):
		return OCI
	case labelled && !supportsRange:
		return FullDownload
	default:
		return RangeStream
	}
}

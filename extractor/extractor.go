// Package extractor implements the C3 mapping extractor: scan an
// unpacked artifact's file list for dist-info/egg-info METADATA
// evidence and reduce it to a MappingEntry. Grounded on claircore's
// python/packagescanner.go (RFC 822 MIME-header metadata files,
// dist-info/egg-info suffix matching, PEP 440 version cleanup via
// pkg/pep440), generalized from "scan a layer tar" to "scan an
// already-extracted file list" since this domain's artifacts are
// fully unpacked by the fetcher before extraction runs.
package extractor

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/pkg/pep440"
	"github.com/prefix-dev/conda-pypi-map/pkg/pep503"
)

var (
	distInfoPattern = regexp.MustCompile(`([^/]+)-([^/]+)\.dist-info/METADATA$`)
	eggInfoPattern  = regexp.MustCompile(`([^/]+)-([^/]+)\.egg-info/PKG-INFO$`)
)

// pypiSourcePrefixes are PyPI's own package-hosting URL prefixes:
// direct_url is set only when none of a rendered recipe's source URLs
// begins with one of them.
var pypiSourcePrefixes = []string{
	"https://pypi.io/packages/",
	"https://pypi.org/packages/",
	"https://pypi.python.org/packages/",
}

// Extract computes a MappingEntry from info, recording filename as the
// artifact's package_name. log may be the zero value (zerolog.Logger{}
// discards all output).
func Extract(log zerolog.Logger, info *fetcher.ArtifactInfo, filename string) (condapypi.MappingEntry, error) {
	names := make([]string, 0)
	versions := make(map[string]string)

	for _, f := range info.Files {
		if hasVendorComponent(f) {
			continue
		}
		name, rawVersion, ok := matchMetadataPath(f)
		if !ok {
			continue
		}
		normalized := pep503.Normalize(name)
		cleaned := cleanVersion(rawVersion)
		if _, seen := versions[normalized]; !seen {
			names = append(names, normalized)
		}
		versions[normalized] = cleaned
		log.Debug().Str("file", f).Str("name", normalized).Str("version", cleaned).Msg("found distribution evidence")
	}

	directURL := extractDirectURL(info.RenderedRecipe)
	if len(names) == 0 {
		return condapypi.NewMappingEntry(info.Name, filename, nil, nil, directURL)
	}
	sort.Strings(names)
	return condapypi.NewMappingEntry(info.Name, filename, names, versions, directURL)
}

func matchMetadataPath(p string) (name, version string, ok bool) {
	if m := distInfoPattern.FindStringSubmatch(p); m != nil {
		return m[1], m[2], true
	}
	if m := eggInfoPattern.FindStringSubmatch(p); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

func hasVendorComponent(p string) bool {
	for part := range strings.SplitSeq(path.Clean(p), "/") {
		if part == "_vendor" || part == "_vendored" {
			return true
		}
	}
	return false
}

// cleanVersion applies §4.3's version-cleanup algorithm: truncate at a
// "-py" marker, try parsing as PEP 440, and on failure retry after
// truncating at the last remaining hyphen. The cleaned string is kept
// as-is if no parse ever succeeds.
func cleanVersion(raw string) string {
	cleaned := raw
	if i := strings.Index(cleaned, "-py"); i >= 0 {
		cleaned = cleaned[:i]
	}
	if v, err := pep440.Parse(cleaned); err == nil {
		return v.String()
	}
	if i := strings.LastIndex(cleaned, "-"); i >= 0 {
		retry := cleaned[:i]
		if v, err := pep440.Parse(retry); err == nil {
			return v.String()
		}
	}
	return cleaned
}

// extractDirectURL implements §4.3's direct_url derivation: the first
// element of rendered_recipe.source, its url field (string or list of
// strings), present only when none of those URLs are hosted on PyPI's
// own package CDN.
func extractDirectURL(recipe map[string]any) []string {
	if recipe == nil {
		return nil
	}
	source, ok := recipe["source"]
	if !ok {
		return nil
	}
	var first map[string]any
	switch v := source.(type) {
	case []any:
		if len(v) == 0 {
			return nil
		}
		first, _ = v[0].(map[string]any)
	case map[string]any:
		first = v
	default:
		return nil
	}
	if first == nil {
		return nil
	}
	urls := asStringList(first["url"])
	if len(urls) == 0 {
		return nil
	}
	for _, u := range urls {
		if isPyPISourceURL(u) {
			return nil
		}
	}
	return urls
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func isPyPISourceURL(u string) bool {
	for _, prefix := range pypiSourcePrefixes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

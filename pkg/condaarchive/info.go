package condaarchive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// Info is the parsed "info/" metadata of a conda artifact plus its
// payload file list, mirroring the fields the extractor and yank filter
// need.
type Info struct {
	// IndexJSON is the raw bytes of info/index.json.
	IndexJSON []byte
	// AboutJSON is the raw bytes of info/about.json, if present.
	AboutJSON []byte
	// RenderedRecipe is the raw bytes of the rendered meta.yaml or
	// recipe.yaml.
	RenderedRecipe []byte
	// RawRecipe is the unexpanded meta.yaml.template, present only when
	// both the rendered and template forms exist.
	RawRecipe []byte
	// CondaBuildConfig is the raw bytes of conda_build_config.yaml, if
	// present.
	CondaBuildConfig []byte
	// Files is the payload file list: from info/paths.json when present,
	// else the legacy info/files member, filtered of .pyc/.txt suffixes.
	// Paths under test/tests/licenses directories are not removed from it.
	Files []string
}

// info/index.json etc live under this prefix regardless of container
// format, since both OpenTarBz2 and OpenConda normalize member paths to
// it.
const infoPrefix = "info/"

// Info extracts the info/ metadata and payload file list from the
// archive's member set.
func (a *Archive) Info() Info {
	var info Info
	if b, ok := a.Member(infoPrefix + "index.json"); ok {
		info.IndexJSON = b
	}
	if b, ok := a.Member(infoPrefix + "about.json"); ok {
		info.AboutJSON = b
	}
	if b, ok := a.Member(infoPrefix + "conda_build_config.yaml"); ok {
		info.CondaBuildConfig = b
	}

	rendered, hasRendered := a.recipeMember("meta.yaml", "recipe.yaml")
	template, hasTemplate := a.recipeMember("meta.yaml.template", "recipe.yaml.template")
	switch {
	case hasRendered && hasTemplate:
		info.RenderedRecipe = rendered
		info.RawRecipe = template
	case hasRendered:
		info.RenderedRecipe = rendered
	case hasTemplate:
		info.RenderedRecipe = template
	}

	info.Files = a.files()
	return info
}

func (a *Archive) recipeMember(names ...string) ([]byte, bool) {
	for _, n := range names {
		if b, ok := a.Member(infoPrefix + n); ok {
			return b, true
		}
	}
	return nil, false
}

// files builds the payload file list per spec.md §4.2: paths.json
// preferred over the legacy files member, filtered of .pyc/.txt
// suffixes. The test/tests/licenses exclusion applied at archive-read
// time covers archive members only, not the paths listed here.
func (a *Archive) files() []string {
	if b, ok := a.Member(infoPrefix + "paths.json"); ok {
		if paths, ok := parsePathsJSON(b); ok {
			return filterFiles(paths)
		}
	}
	if b, ok := a.Member(infoPrefix + "files"); ok {
		return filterFiles(parseLegacyFiles(b))
	}
	return nil
}

func filterFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if hasExcludedSuffix(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasExcludedSuffix(name string) bool {
	for _, suf := range excludedSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

type pathsJSON struct {
	Paths []struct {
		Path string `json:"_path"`
	} `json:"paths"`
}

func parsePathsJSON(b []byte) ([]string, bool) {
	var doc pathsJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(doc.Paths))
	for _, p := range doc.Paths {
		out = append(out, p.Path)
	}
	return out, true
}

func parseLegacyFiles(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Package yank implements the C4 yank filter: a small, externally
// maintained exception list for conda artifacts known to carry PyPI
// distributions without the usual dist-info/egg-info evidence (or vice
// versa), keyed by package name, subdir ("platform"), and channel.
// Grounded on original_source/internals/yank.py's YankConfig.should_yank.
package yank

import (
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/prefix-dev/conda-pypi-map"
)

// Load parses a YankConfig document from r.
func Load(r io.Reader) (condapypi.YankConfig, error) {
	var cfg condapypi.YankConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return condapypi.YankConfig{}, fmt.Errorf("yank: decoding config: %w", err)
	}
	return cfg, nil
}

// ShouldYank reports whether name's mapping on subdir/channel must be
// suppressed: a rule matches when all three of name, subdir, and
// channel are present in that rule.
func ShouldYank(cfg condapypi.YankConfig, name string, subdir condapypi.Subdir, channel string) bool {
	for _, rule := range cfg.Packages {
		if rule.Name != name {
			continue
		}
		if !slices.Contains(rule.Platforms, string(subdir)) {
			continue
		}
		if slices.Contains(rule.Channels, channel) {
			return true
		}
	}
	return false
}

// Names returns every package name carrying at least one yank rule, in
// declaration order with duplicates removed — used by the remover
// pathway (§6) to enumerate hashes that must be deleted from the store.
func Names(cfg condapypi.YankConfig) []string {
	seen := make(map[string]bool, len(cfg.Packages))
	out := make([]string, 0, len(cfg.Packages))
	for _, rule := range cfg.Packages {
		if seen[rule.Name] {
			continue
		}
		seen[rule.Name] = true
		out = append(out, rule.Name)
	}
	return out
}

package yank

import (
	"strings"
	"testing"

	"github.com/prefix-dev/conda-pypi-map"
)

func TestShouldYank(t *testing.T) {
	cfg := condapypi.YankConfig{Packages: []condapypi.YankRule{
		{Name: "pyqt", Platforms: []string{"osx-arm64"}, Channels: []string{"conda-forge"}},
	}}

	cases := []struct {
		name, subdir, channel string
		want                  bool
	}{
		{"pyqt", "osx-arm64", "conda-forge", true},
		{"pyqt", "linux-64", "conda-forge", false},
		{"pyqt", "osx-arm64", "bioconda", false},
		{"numpy", "osx-arm64", "conda-forge", false},
	}
	for _, c := range cases {
		if got := ShouldYank(cfg, c.name, condapypi.Subdir(c.subdir), c.channel); got != c.want {
			t.Errorf("ShouldYank(%s, %s, %s) = %v, want %v", c.name, c.subdir, c.channel, got, c.want)
		}
	}
}

func TestLoad(t *testing.T) {
	doc := `
packages:
  - name: pyqt
    platforms: [osx-arm64]
    channels: [conda-forge]
  - name: vtk
    platforms: [linux-64, win-64]
    channels: [conda-forge, bioconda]
`
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Packages) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(cfg.Packages))
	}
	names := Names(cfg)
	if len(names) != 2 || names[0] != "pyqt" || names[1] != "vtk" {
		t.Errorf("unexpected names: %v", names)
	}
}

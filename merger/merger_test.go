package merger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
)

func writeShard(t *testing.T, dir, channel, name string, partial condapypi.PartialIndex) {
	t.Helper()
	channelDir := filepath.Join(dir, channel)
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(partial)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(channelDir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunMergesDisjointShards(t *testing.T) {
	dir := t.TempDir()
	numpy, err := condapypi.NewMappingEntry("numpy", "numpy-1.26.4-py311h_0.conda", []string{"numpy"}, map[string]string{"numpy": "1.26.4"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	scipy, err := condapypi.NewMappingEntry("scipy", "scipy-1.11.0-py311h_0.conda", []string{"scipy"}, map[string]string{"scipy": "1.11.0"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	writeShard(t, dir, "conda-forge", "linux-64@n.json", condapypi.PartialIndex{"aaa": numpy})
	writeShard(t, dir, "conda-forge", "linux-64@s.json", condapypi.PartialIndex{"bbb": scipy})

	gw := memstore.New()
	result, err := Run(context.Background(), gw, Options{
		Channel:    condapypi.Channel{Name: "conda-forge"},
		PartialDir: dir,
		Upload:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ShardsMerged != 2 {
		t.Fatalf("expected 2 shards merged, got %d", result.ShardsMerged)
	}
	if len(result.Canonical) != 2 {
		t.Fatalf("expected 2 artifacts in canonical index, got %d", len(result.Canonical))
	}

	published, err := gw.GetIndex(context.Background(), "conda-forge")
	if err != nil {
		t.Fatal(err)
	}
	if len(published) != 2 {
		t.Errorf("expected published index to contain 2 artifacts, got %d", len(published))
	}
}

func TestRunStartsFromExistingCanonicalIndex(t *testing.T) {
	dir := t.TempDir()
	gw := memstore.New()
	zlib, err := condapypi.NewMappingEntry("zlib", "zlib-1.3-h5eee18b_0.conda", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := gw.PutIndex(context.Background(), "conda-forge", condapypi.IndexMapping{"ccc": zlib}); err != nil {
		t.Fatal(err)
	}

	numpy, err := condapypi.NewMappingEntry("numpy", "numpy-1.26.4-py311h_0.conda", []string{"numpy"}, map[string]string{"numpy": "1.26.4"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	writeShard(t, dir, "conda-forge", "linux-64@n.json", condapypi.PartialIndex{"aaa": numpy})

	result, err := Run(context.Background(), gw, Options{
		Channel:    condapypi.Channel{Name: "conda-forge"},
		PartialDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Canonical) != 2 {
		t.Fatalf("expected canonical+shard union of 2, got %d: %v", len(result.Canonical), result.Canonical)
	}
}

func TestRunNoShardsIsNoop(t *testing.T) {
	gw := memstore.New()
	result, err := Run(context.Background(), gw, Options{
		Channel:    condapypi.Channel{Name: "conda-forge"},
		PartialDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ShardsMerged != 0 || len(result.Canonical) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

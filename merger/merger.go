// Package merger implements the C8 merger: fold every shard's
// PartialIndex file for a channel into the canonical IndexMapping and,
// optionally, publish it. Grounded on claircore's
// indexer/controller/coalesce.go fold-many-into-one shape, narrowed to a
// single-writer, non-concurrent pass since partial files are disjoint by
// construction (shard keys partition by subdir and first letter).
package merger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/store"
)

// Options configures one merge run.
type Options struct {
	Channel condapypi.Channel
	// PartialDir is the root directory holding
	// <PartialDir>/<channel>/*.json shard files.
	PartialDir string
	Upload     bool
}

// Result reports what a merge run folded in.
type Result struct {
	ShardsMerged int
	Canonical    condapypi.IndexMapping
}

// Run loads the canonical index (or starts from empty), folds in every
// shard file under <PartialDir>/<Channel>, and optionally publishes the
// result.
func Run(ctx context.Context, gw store.Gateway, opts Options) (Result, error) {
	log := slog.With("component", "merger.Run", "channel", opts.Channel.Name)

	canonical, err := loadCanonical(ctx, gw, opts.Channel.Name)
	if err != nil {
		return Result{}, err
	}

	shardFiles, err := listShardFiles(opts.PartialDir, opts.Channel.Name)
	if err != nil {
		return Result{}, err
	}

	for _, path := range shardFiles {
		partial, err := loadPartial(path)
		if err != nil {
			return Result{}, fmt.Errorf("merger: loading shard %s: %w", path, err)
		}
		if err := canonical.Merge(condapypi.IndexMapping(partial)); err != nil {
			return Result{}, fmt.Errorf("merger: merging shard %s: %w", path, err)
		}
	}

	if opts.Upload {
		if err := gw.PutIndex(ctx, opts.Channel.Name, canonical); err != nil {
			return Result{}, fmt.Errorf("merger: publishing canonical index: %w", err)
		}
	}

	log.Info("merge complete", "shards_merged", len(shardFiles), "artifacts", len(canonical))
	return Result{ShardsMerged: len(shardFiles), Canonical: canonical}, nil
}

func loadCanonical(ctx context.Context, gw store.Gateway, channel string) (condapypi.IndexMapping, error) {
	idx, err := gw.GetIndex(ctx, channel)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, condapypi.ErrNotFound):
		return condapypi.IndexMapping{}, nil
	default:
		return nil, fmt.Errorf("merger: loading canonical index: %w", err)
	}
}

func listShardFiles(partialDir, channel string) ([]string, error) {
	dir := filepath.Join(partialDir, channel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("merger: listing partial dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func loadPartial(path string) (condapypi.PartialIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var partial condapypi.PartialIndex
	if err := json.NewDecoder(f).Decode(&partial); err != nil {
		return nil, err
	}
	return partial, nil
}

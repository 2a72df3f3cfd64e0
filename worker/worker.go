// Package worker implements the C7 shard worker: for one
// subdir@letter shard, fetch, extract, yank-filter, and optionally
// upload every new artifact, writing a partial index file. Grounded on
// claircore's internal/indexer/fetcher + layerscanner bounded-worker-
// pool chassis: a semaphore bounds the goroutines and a WaitGroup joins
// them; a failed artifact is logged and skipped rather than cancelling
// the shard.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/extractor"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store"
	"github.com/prefix-dev/conda-pypi-map/yank"
)

// DefaultConcurrency is the extraction pool's default worker count, per
// spec.md §5's 16-64 guidance.
const DefaultConcurrency = 32

var (
	artifactsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condapypi_worker_artifacts_processed_total",
		Help: "Artifacts processed by the shard worker, by outcome.",
	}, []string{"outcome"})
	artifactsYanked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "condapypi_worker_artifacts_yanked_total",
		Help: "Artifacts suppressed by the yank filter.",
	})
)

func init() {
	prometheus.MustRegister(artifactsProcessed, artifactsYanked)
}

// Backends selects a fetcher.Backend by fetcher.Name.
type Backends map[fetcher.Name]fetcher.Backend

// Options configures one shard run.
type Options struct {
	Channel condapypi.Channel
	Subdir  condapypi.Subdir
	// Label scopes repodata and backend selection to a labelled
	// anaconda.org channel variant; nil means the channel's unlabelled
	// main repodata, matching producer's own label loop.
	Label        *condapypi.Label
	Letter       string
	SnapshotPath string
	PartialDir   string
	Upload       bool
	Concurrency  int
	Yank         condapypi.YankConfig
}

// Result is a shard's outcome.
type Result struct {
	Partial condapypi.PartialIndex
	Path    string
}

// Run executes one shard: refetches repodata for (Options.Subdir,
// Options.Label), selects every record whose filename begins with
// Options.Letter and whose sha256 is absent from the baseline
// snapshot, and processes those records through a bounded worker pool.
func Run(ctx context.Context, repo *repodata.Client, backends Backends, gw store.Gateway, opts Options) (Result, error) {
	log := slog.With("component", "worker.Run", "channel", opts.Channel.Name, "subdir", string(opts.Subdir), "letter", opts.Letter)

	baseline, err := loadSnapshot(opts.SnapshotPath)
	if err != nil {
		return Result{}, err
	}

	records, err := repo.FetchRepodata(ctx, opts.Channel, opts.Subdir, opts.Label)
	if err != nil {
		return Result{}, fmt.Errorf("worker: fetching repodata: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		mu      sync.Mutex
		partial = make(condapypi.PartialIndex)
		sem     = semaphore.NewWeighted(int64(concurrency))
		wg      sync.WaitGroup
	)
	for filename, rec := range records {
		if !strings.HasPrefix(filename, opts.Letter) {
			continue
		}
		if _, ok := baseline[rec.SHA256]; ok {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(filename string, rec repodata.Record) {
			defer wg.Done()
			defer sem.Release(1)

			entry, ok, err := processArtifact(ctx, backends, gw, opts, filename, rec)
			if err != nil {
				log.Warn("artifact processing failed, skipping", "filename", filename, "error", err)
				artifactsProcessed.WithLabelValues("error").Inc()
				return
			}
			if !ok {
				return
			}
			mu.Lock()
			partial[rec.SHA256] = entry
			mu.Unlock()
		}(filename, rec)
	}
	wg.Wait()

	path, err := writePartial(opts.PartialDir, opts.Channel.Name, opts.Subdir, opts.Letter, partial)
	if err != nil {
		return Result{}, err
	}
	log.Info("shard complete", "new_artifacts", len(partial))
	return Result{Partial: partial, Path: path}, nil
}

func processArtifact(ctx context.Context, backends Backends, gw store.Gateway, opts Options, filename string, rec repodata.Record) (condapypi.MappingEntry, bool, error) {
	ref := condapypi.ArtifactRef{Channel: opts.Channel.Name, Subdir: opts.Subdir, Filename: filename, SHA256: rec.SHA256}

	backendName := fetcher.Choose(opts.Channel.Name, opts.Channel.SupportsRange, opts.Label != nil, filename)
	info, err := fetchWithFallback(ctx, backends, backendName, ref)
	if err != nil {
		return condapypi.MappingEntry{}, false, err
	}

	entry, err := extractor.Extract(zerolog.Nop(), info, filename)
	if err != nil {
		return condapypi.MappingEntry{}, false, err
	}

	if yank.ShouldYank(opts.Yank, entry.CondaName, opts.Subdir, opts.Channel.Name) {
		artifactsYanked.Inc()
		return condapypi.MappingEntry{}, false, nil
	}

	if opts.Upload {
		if err := gw.PutMapping(ctx, rec.SHA256, entry); err != nil {
			return condapypi.MappingEntry{}, false, fmt.Errorf("worker: uploading mapping for %s: %w", filename, err)
		}
	}

	artifactsProcessed.WithLabelValues("ok").Inc()
	return entry, true, nil
}

func fetchWithFallback(ctx context.Context, backends Backends, name fetcher.Name, ref condapypi.ArtifactRef) (*fetcher.ArtifactInfo, error) {
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("worker: no backend registered for %q", name)
	}
	info, err := b.Fetch(ctx, ref)
	if err == nil {
		return info, nil
	}
	if !fetcher.IsFallbackTrigger(err) || name != fetcher.RangeStream || !fetcher.IsTarBz2(ref.Filename) {
		return nil, err
	}
	full, ok := backends[fetcher.FullDownload]
	if !ok {
		return nil, err
	}
	return full.Fetch(ctx, ref)
}

func loadSnapshot(path string) (condapypi.IndexMapping, error) {
	if path == "" {
		return condapypi.IndexMapping{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return condapypi.IndexMapping{}, nil
		}
		return nil, fmt.Errorf("worker: opening snapshot: %w", err)
	}
	defer f.Close()
	var idx condapypi.IndexMapping
	if err := json.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("worker: decoding snapshot: %w", err)
	}
	return idx, nil
}

func writePartial(dir, channel string, subdir condapypi.Subdir, letter string, partial condapypi.PartialIndex) (string, error) {
	if dir == "" {
		return "", nil
	}
	channelDir := filepath.Join(dir, channel)
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		return "", fmt.Errorf("worker: creating partial dir: %w", err)
	}
	path := filepath.Join(channelDir, fmt.Sprintf("%s@%s.json", subdir, letter))

	tmp, err := os.CreateTemp(channelDir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("worker: creating partial temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(partial); err != nil {
		tmp.Close()
		return "", fmt.Errorf("worker: encoding partial: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("worker: closing partial temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("worker: renaming partial into place: %w", err)
	}
	return path, nil
}

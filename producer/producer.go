// Package producer implements the C6 producer: diff live repodata
// against the published canonical index and emit the set of shards a
// fleet of shard workers must process. Grounded on claircore's
// libvuln/updates.Manager.Run update-diffing shape (build a worklist,
// let downstream workers pick it up independently), narrowed here to a
// single-process, single-channel run with no distributed locking.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store"
)

// SubdirConcurrency bounds how many subdirs are diffed against
// repodata.json concurrently.
const SubdirConcurrency = 8

// Options configures one producer run.
type Options struct {
	Channel condapypi.Channel
	// Subdir restricts the run to a single subdir; nil means every
	// subdir the channel declares (or the default list).
	Subdir *condapypi.Subdir
	// CheckIfExists loads the canonical index as a baseline; when
	// false, every record is treated as new.
	CheckIfExists bool
	// CheckIfPyPIExists additionally re-includes already-indexed
	// artifacts whose stored entry carries no PyPI evidence, in case a
	// later run's extractor logic or artifact availability changed.
	CheckIfPyPIExists bool
	// SnapshotPath is where the index snapshot consumed by shard
	// workers is written.
	SnapshotPath string
}

// Result is the producer's output: the shard set, in deterministic
// order, consumed by the run orchestrator.
type Result struct {
	Shards []string `json:"shards"`
}

// Run executes one producer pass.
func Run(ctx context.Context, repo *repodata.Client, gw store.Gateway, opts Options) (Result, error) {
	log := slog.With("component", "producer.Run", "channel", opts.Channel.Name)

	baseline := condapypi.IndexMapping{}
	if opts.CheckIfExists {
		idx, err := gw.GetIndex(ctx, opts.Channel.Name)
		switch {
		case err == nil:
			baseline = idx
		case isNotFound(err):
			log.Info("no published index yet, starting from empty baseline")
		default:
			return Result{}, fmt.Errorf("producer: loading canonical index: %w", err)
		}
	}

	subdirs, err := subdirList(ctx, repo, opts)
	if err != nil {
		return Result{}, err
	}

	var (
		mu       sync.Mutex
		shardSet = make(map[string]bool)
		sem      = semaphore.NewWeighted(SubdirConcurrency)
		wg       sync.WaitGroup
		firstErr error
	)
	for _, subdir := range subdirs {
		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = err
			break
		}
		wg.Add(1)
		go func(subdir condapypi.Subdir) {
			defer wg.Done()
			defer sem.Release(1)

			found, err := diffSubdir(ctx, repo, opts, subdir, baseline)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for s := range found {
				shardSet[s] = true
			}
		}(subdir)
	}
	wg.Wait()
	if firstErr != nil {
		return Result{}, firstErr
	}

	if err := writeSnapshot(opts.SnapshotPath, baseline); err != nil {
		return Result{}, err
	}

	shards := make([]string, 0, len(shardSet))
	for s := range shardSet {
		shards = append(shards, s)
	}
	sort.Strings(shards)
	log.Info("producer run complete", "subdirs", len(subdirs), "shards", len(shards))
	return Result{Shards: shards}, nil
}

func diffSubdir(ctx context.Context, repo *repodata.Client, opts Options, subdir condapypi.Subdir, baseline condapypi.IndexMapping) (map[string]bool, error) {
	labels, err := repo.ListLabels(ctx, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("producer: listing labels for %s: %w", subdir, err)
	}
	if len(labels) == 0 {
		labels = []condapypi.Label{""}
	}

	found := make(map[string]bool)
	for _, label := range labels {
		var labelPtr *condapypi.Label
		if label != "" {
			labelPtr = &label
		}
		records, err := repo.FetchRepodata(ctx, opts.Channel, subdir, labelPtr)
		if err != nil {
			return nil, fmt.Errorf("producer: fetching repodata for %s: %w", subdir, err)
		}
		for filename, rec := range records {
			if rec.SHA256 == "" {
				continue
			}
			if includeRecord(baseline, rec, opts.CheckIfPyPIExists) {
				found[condapypi.ShardKey(subdir, filename)] = true
			}
		}
	}
	return found, nil
}

func includeRecord(baseline condapypi.IndexMapping, rec repodata.Record, checkIfPyPIExists bool) bool {
	existing, ok := baseline[rec.SHA256]
	if !ok {
		return true
	}
	return checkIfPyPIExists && !existing.HasPyPINames()
}

func subdirList(ctx context.Context, repo *repodata.Client, opts Options) ([]condapypi.Subdir, error) {
	if opts.Subdir != nil {
		return []condapypi.Subdir{*opts.Subdir}, nil
	}
	return repo.ListSubdirs(ctx, opts.Channel)
}

func writeSnapshot(path string, idx condapypi.IndexMapping) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("producer: creating snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("producer: creating snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		return fmt.Errorf("producer: encoding snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("producer: closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("producer: renaming snapshot into place: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, condapypi.ErrNotFound)
}

// Package remover implements the yank-driven deletion pathway (§6):
// for one (channel, subdir), identify every conda artifact whose name
// matches a yank rule scoped to that subdir and channel, and remove its
// mapping from the canonical index and object store. Grounded on the
// same repodata-diff chassis as producer, and on
// datastore/postgres/gc.go's identify-then-delete shape already reused
// by uploader's stale-lookup cleanup.
package remover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store"
	"github.com/prefix-dev/conda-pypi-map/yank"
)

// Options configures one remover run.
type Options struct {
	Channel condapypi.Channel
	Subdir  condapypi.Subdir
	Yank    condapypi.YankConfig
	// DryRun reports what would be deleted without writing anything.
	DryRun bool
}

// Result reports the hashes a run removed (or, under DryRun, would
// remove), sorted for deterministic output.
type Result struct {
	Deleted []string
}

// Run deletes every hash under (Options.Channel, Options.Subdir) whose
// conda package name is yanked for that channel/subdir.
func Run(ctx context.Context, repo *repodata.Client, gw store.Gateway, opts Options) (Result, error) {
	log := slog.With("component", "remover.Run", "channel", opts.Channel.Name, "subdir", string(opts.Subdir))

	yankedNames := make(map[string]bool)
	for _, name := range yank.Names(opts.Yank) {
		if yank.ShouldYank(opts.Yank, name, opts.Subdir, opts.Channel.Name) {
			yankedNames[name] = true
		}
	}
	if len(yankedNames) == 0 {
		log.Info("no yank rules apply to this channel/subdir, nothing to remove")
		return Result{}, nil
	}

	records, err := repo.FetchRepodata(ctx, opts.Channel, opts.Subdir, nil)
	if err != nil {
		return Result{}, fmt.Errorf("remover: fetching repodata: %w", err)
	}

	canonical, err := gw.GetIndex(ctx, opts.Channel.Name)
	switch {
	case err == nil:
	case errors.Is(err, condapypi.ErrNotFound):
		log.Info("no published index for channel, nothing to remove")
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("remover: loading canonical index: %w", err)
	}

	var deleted []string
	for _, rec := range records {
		if !yankedNames[rec.Name] {
			continue
		}
		if _, ok := canonical[rec.SHA256]; !ok {
			continue
		}
		deleted = append(deleted, rec.SHA256)
	}
	sort.Strings(deleted)

	if opts.DryRun || len(deleted) == 0 {
		log.Info("remover run complete", "dry_run", opts.DryRun, "deleted", len(deleted))
		return Result{Deleted: deleted}, nil
	}

	for _, hash := range deleted {
		if err := gw.DeleteHash(ctx, hash); err != nil {
			return Result{}, fmt.Errorf("remover: deleting hash %s: %w", hash, err)
		}
		delete(canonical, hash)
	}
	if err := gw.PutIndex(ctx, opts.Channel.Name, canonical); err != nil {
		return Result{}, fmt.Errorf("remover: publishing updated canonical index: %w", err)
	}

	log.Info("remover run complete", "dry_run", opts.DryRun, "deleted", len(deleted))
	return Result{Deleted: deleted}, nil
}

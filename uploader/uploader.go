// Package uploader implements the C10 incremental uploader: push
// PyPIPackageLookup objects that changed since the last publish, then
// delete stale objects no longer present in the new set. Grounded on
// claircore's conditional-fetch idiom (enricher/kev/kev.go,
// rhel/vex/fetcher.go skip-if-unchanged via a cached validator) turned
// into a conditional *upload* keyed on a content_sha256 object-metadata
// field rather than a response header, with the identify-then-delete gc
// shape from datastore/postgres/gc.go.
package uploader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/store"
)

// Concurrency bounds how many lookups are HEAD/PUT-checked at once, per
// spec.md §5's upload pool size.
const Concurrency = 50

// Result reports what one upload run did.
type Result struct {
	Uploaded []string
	Skipped  []string
	Deleted  []string
}

// Run uploads every lookup in lookups whose serialized content differs
// from what's already stored, then deletes any previously published
// lookup for channel not present in lookups. When force is true, the
// hash comparison is skipped and every lookup is uploaded
// unconditionally (the --no-skip-unchanged CLI mode).
func Run(ctx context.Context, gw store.Gateway, channel string, lookups map[string]condapypi.PyPIPackageLookup, force bool) (Result, error) {
	log := slog.With("component", "uploader.Run", "channel", channel, "force", force)

	var (
		mu       sync.Mutex
		uploaded []string
		skipped  []string
		sem      = semaphore.NewWeighted(Concurrency)
		wg       sync.WaitGroup
		firstErr error
	)
	for name, lookup := range lookups {
		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = err
			break
		}
		wg.Add(1)
		go func(name string, lookup condapypi.PyPIPackageLookup) {
			defer wg.Done()
			defer sem.Release(1)

			didUpload, err := uploadOne(ctx, gw, channel, name, lookup, force)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("uploader: uploading lookup %q: %w", name, err)
				}
				return
			}
			if didUpload {
				uploaded = append(uploaded, name)
			} else {
				skipped = append(skipped, name)
			}
		}(name, lookup)
	}
	wg.Wait()
	if firstErr != nil {
		return Result{}, firstErr
	}

	deleted, err := cleanupStale(ctx, gw, channel, lookups)
	if err != nil {
		return Result{}, err
	}

	log.Info("upload complete", "uploaded", len(uploaded), "skipped", len(skipped), "deleted", len(deleted))
	return Result{Uploaded: uploaded, Skipped: skipped, Deleted: deleted}, nil
}

func uploadOne(ctx context.Context, gw store.Gateway, channel, name string, lookup condapypi.PyPIPackageLookup, force bool) (bool, error) {
	body, err := json.Marshal(lookup)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(body)
	newHash := hex.EncodeToString(sum[:])

	if !force {
		existingHash, err := gw.HeadPyPILookupHash(ctx, channel, name)
		switch {
		case err == nil:
			if existingHash == "" {
				// Stored without content_sha256 metadata: hash the stored
				// bytes instead; if they can't be read, upload.
				if stored, getErr := gw.GetPyPILookup(ctx, channel, name); getErr == nil {
					storedSum := sha256.Sum256(stored)
					existingHash = hex.EncodeToString(storedSum[:])
				}
			}
			if existingHash == newHash {
				return false, nil
			}
		case errors.Is(err, condapypi.ErrNotFound):
			// Not yet published: upload unconditionally.
		default:
			return false, err
		}
	}

	if err := gw.PutPyPILookup(ctx, channel, name, body, newHash); err != nil {
		return false, err
	}
	return true, nil
}

func cleanupStale(ctx context.Context, gw store.Gateway, channel string, lookups map[string]condapypi.PyPIPackageLookup) ([]string, error) {
	existing, err := gw.ListPyPILookupNames(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("uploader: listing existing lookups: %w", err)
	}
	var deleted []string
	for _, name := range existing {
		if _, ok := lookups[name]; ok {
			continue
		}
		if err := gw.DeletePyPILookup(ctx, channel, name); err != nil {
			return nil, fmt.Errorf("uploader: deleting stale lookup %q: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

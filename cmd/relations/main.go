// Command relations builds a channel's normalized relations table and
// PyPI-to-conda lookups from its canonical index, optionally writing
// them locally and publishing them to the object store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/relations"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
	"github.com/prefix-dev/conda-pypi-map/uploader"
)

// defaultPublicIndexURLBase mirrors the original system's read-only
// HTTPS mirror of hash-v0/<channel>/index.json, usable without
// object-store credentials. CONDA_MAPPING_BASE_URL overrides it per
// spec.md §6.
const defaultPublicIndexURLBase = "https://conda-mapping.prefix.dev"

func main() {
	var (
		channelName     = flag.String("channel", "conda-forge", "channel name")
		upload          = flag.Bool("upload", false, "publish the table, metadata, and lookups to the object store")
		outputDir       = flag.String("output-dir", "", "directory to write relations.jsonl.gz, metadata.json, and lookups/*.json into")
		skipUnchanged   = flag.Bool("skip-unchanged", true, "skip re-uploading lookups whose content hash hasn't changed")
		noSkipUnchanged = flag.Bool("no-skip-unchanged", false, "force re-upload of every lookup regardless of content hash")
		publicURL       = flag.Bool("public-url", false, "load the canonical index from the public HTTPS mirror instead of the object store (no credentials needed; incompatible with --upload)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	ch := condapypi.LookupChannel(*channelName)
	gw := memstore.New()

	publicIndexURLBase := defaultPublicIndexURLBase
	if v := os.Getenv("CONDA_MAPPING_BASE_URL"); v != "" {
		publicIndexURLBase = v
	}

	var (
		idx condapypi.IndexMapping
		err error
	)
	if *publicURL {
		idx, err = fetchPublicIndex(ctx, publicIndexURLBase, ch.Name)
	} else {
		idx, err = gw.GetIndex(ctx, ch.Name)
		if errors.Is(err, condapypi.ErrNotFound) {
			log.Fatal().Str("channel", ch.Name).Msg("no published index found for channel")
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("loading canonical index")
	}

	result, err := relations.Build(ch.Name, idx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("building relations table")
	}

	if *outputDir != "" {
		if err := writeLocal(*outputDir, result); err != nil {
			log.Fatal().Err(err).Msg("writing local output")
		}
	}

	if *upload {
		if *publicURL {
			log.Warn().Msg("cannot upload to object store when using --public-url, skipping")
		} else {
			if err := gw.PutRelationsTable(ctx, ch.Name, result.SerializedTable); err != nil {
				log.Fatal().Err(err).Msg("publishing relations table")
			}
			metaJSON, err := encodeJSON(result.Metadata)
			if err != nil {
				log.Fatal().Err(err).Msg("encoding relations metadata")
			}
			if err := gw.PutRelationsMetadata(ctx, ch.Name, metaJSON); err != nil {
				log.Fatal().Err(err).Msg("publishing relations metadata")
			}
			force := *noSkipUnchanged || !*skipUnchanged
			uploadResult, err := uploader.Run(ctx, gw, ch.Name, result.Lookups, force)
			if err != nil {
				log.Fatal().Err(err).Msg("uploading lookups")
			}
			log.Info().
				Int("uploaded", len(uploadResult.Uploaded)).
				Int("skipped", len(uploadResult.Skipped)).
				Int("deleted", len(uploadResult.Deleted)).
				Msg("lookup upload complete")
		}
	}

	fmt.Fprintf(os.Stderr, "relations: %d rows, %d conda packages, %d pypi packages\n",
		result.Metadata.TotalRelations, result.Metadata.UniqueCondaPackages, result.Metadata.UniquePyPIPackages)
}

func fetchPublicIndex(ctx context.Context, baseURL, channel string) (condapypi.IndexMapping, error) {
	url := fmt.Sprintf("%s/hash-v0/%s/index.json", baseURL, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching public index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching public index %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	idx, err := decodeIndex(body)
	if err != nil {
		return nil, fmt.Errorf("decoding public index: %w", err)
	}
	return idx, nil
}

func writeLocal(dir string, result relations.Result) error {
	if err := os.MkdirAll(filepath.Join(dir, "lookups"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "relations.jsonl.gz"), result.SerializedTable, 0o644); err != nil {
		return err
	}
	metaJSON, err := encodeJSON(result.Metadata)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaJSON, 0o644); err != nil {
		return err
	}
	for name, lookup := range result.Lookups {
		body, err := encodeJSON(lookup)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "lookups", name+".json"), body, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func decodeIndex(body []byte) (condapypi.IndexMapping, error) {
	var idx condapypi.IndexMapping
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

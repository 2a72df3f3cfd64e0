// Command merger folds a channel's shard partial-index files into its
// canonical index and, optionally, publishes the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/merger"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
)

func main() {
	var (
		channelName = flag.String("channel", "conda-forge", "channel name")
		partialDir  = flag.String("partial-dir", ".", "directory holding <channel>/*.json shard files")
		upload      = flag.Bool("upload", false, "publish the merged canonical index to the object store")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	ch := condapypi.LookupChannel(*channelName)
	// A production deployment supplies its own S3/R2-backed
	// store.Gateway externally; this runner's --upload lands in an
	// in-process store, and the merged index is also printed to
	// stdout so it can be redirected into the next pipeline stage.
	gw := memstore.New()

	result, err := merger.Run(ctx, gw, merger.Options{
		Channel:    ch,
		PartialDir: *partialDir,
		Upload:     *upload,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("merge run failed")
	}
	if err := json.NewEncoder(os.Stdout).Encode(result.Canonical); err != nil {
		log.Fatal().Err(err).Msg("encoding canonical index")
	}
	log.Info().Int("shards_merged", result.ShardsMerged).Int("artifacts", len(result.Canonical)).Msg("merge complete")
}

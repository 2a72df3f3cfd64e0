// Command producer diffs a channel's live repodata against its
// published canonical index and writes the shard worklist a fleet of
// shard workers consumes, plus the baseline snapshot they diff
// against locally.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/producer"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
)

func main() {
	var (
		channelName       = flag.String("channel", "conda-forge", "channel name")
		subdirName        = flag.String("subdir", "", "restrict to a single subdir (default: every subdir the channel declares)")
		checkIfExists     = flag.Bool("check-exists", true, "load the published canonical index as a baseline")
		checkIfPyPIExists = flag.Bool("check-pypi-exists", false, "re-include already-indexed artifacts with no PyPI evidence on record")
		outputDir         = flag.String("output-dir", ".", "directory for the index snapshot consumed by shard workers")
		verbose           = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	ch := condapypi.LookupChannel(*channelName)
	opts := producer.Options{
		Channel:           ch,
		CheckIfExists:     *checkIfExists,
		CheckIfPyPIExists: *checkIfPyPIExists,
		SnapshotPath:      *outputDir + "/" + ch.Name + "/index.json",
	}
	if *subdirName != "" {
		s := condapypi.Subdir(*subdirName)
		opts.Subdir = &s
	}

	// A production deployment supplies its own S3/R2-backed
	// store.Gateway externally; this runner reads/writes only the
	// local snapshot, so an empty in-process store stands in for it.
	gw := memstore.New()
	repo := repodata.NewClient(nil)

	result, err := producer.Run(ctx, repo, gw, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("producer run failed")
	}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Fatal().Err(err).Msg("encoding result")
	}
	fmt.Fprintf(os.Stderr, "wrote %d shards\n", len(result.Shards))
}

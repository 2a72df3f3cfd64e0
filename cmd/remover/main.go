// Command remover deletes every conda artifact mapping yanked for one
// (channel, subdir) pair from the canonical index and object store.
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
	"github.com/prefix-dev/conda-pypi-map/remover"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
	"github.com/prefix-dev/conda-pypi-map/yank"
)

func main() {
	var (
		channelName = flag.String("channel", "conda-forge", "channel name")
		yankPath    = flag.String("yank-config", "", "path to a yank rules YAML file (required)")
		dryRun      = flag.Bool("dry-run", false, "report what would be deleted without writing anything")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if flag.NArg() != 1 {
		log.Fatal().Msg("usage: remover <subdir> --channel C --yank-config FILE [--dry-run]")
	}
	subdir := condapypi.Subdir(flag.Arg(0))

	if *yankPath == "" {
		log.Fatal().Msg("--yank-config is required")
	}
	f, err := os.Open(*yankPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening yank config")
	}
	cfg, err := yank.Load(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("loading yank config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	ch := condapypi.LookupChannel(*channelName)
	repo := repodata.NewClient(nil)
	// A production deployment supplies its own S3/R2-backed
	// store.Gateway externally; memstore here only demonstrates the
	// deletion flow end to end for local runs.
	gw := memstore.New()

	result, err := remover.Run(ctx, repo, gw, remover.Options{
		Channel: ch,
		Subdir:  subdir,
		Yank:    cfg,
		DryRun:  *dryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("remover run failed")
	}
	if err := json.NewEncoder(os.Stdout).Encode(result.Deleted); err != nil {
		log.Fatal().Err(err).Msg("encoding deleted hashes")
	}
	log.Info().Int("deleted", len(result.Deleted)).Bool("dry_run", *dryRun).Msg("remover run complete")
}

// Command worker processes a single subdir@letter shard: fetch,
// extract, yank-filter, and optionally upload every artifact new since
// the producer's snapshot, writing a partial index file for the
// merger to fold in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/internal/backendset"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
	"github.com/prefix-dev/conda-pypi-map/worker"
	"github.com/prefix-dev/conda-pypi-map/yank"
)

func main() {
	var (
		channelName  = flag.String("channel", "conda-forge", "channel name")
		snapshotPath = flag.String("snapshot-path", "", "index snapshot written by the producer")
		partialDir   = flag.String("partial-dir", ".", "directory to write this shard's partial index into")
		yankPath     = flag.String("yank-config", "", "path to a yank rules YAML file")
		label        = flag.String("label", "", "anaconda.org label to scope repodata/backend selection to (default: unlabelled main repodata)")
		upload       = flag.Bool("upload", false, "upload processed mappings to the object store")
		concurrency  = flag.Int("concurrency", worker.DefaultConcurrency, "extraction pool size")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: worker [flags] <subdir@letter>")
		os.Exit(2)
	}
	subdir, letter, ok := strings.Cut(flag.Arg(0), "@")
	if !ok {
		fmt.Fprintln(os.Stderr, "shard argument must be of the form <subdir>@<letter>")
		os.Exit(2)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	var yankCfg condapypi.YankConfig
	if *yankPath != "" {
		f, err := os.Open(*yankPath)
		if err != nil {
			log.Fatal().Err(err).Msg("opening yank config")
		}
		yankCfg, err = yank.Load(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Msg("loading yank config")
		}
	}

	ch := condapypi.LookupChannel(*channelName)
	var labelPtr *condapypi.Label
	if *label != "" {
		l := condapypi.Label(*label)
		labelPtr = &l
	}
	opts := worker.Options{
		Channel:      ch,
		Subdir:       condapypi.Subdir(subdir),
		Label:        labelPtr,
		Letter:       letter,
		SnapshotPath: *snapshotPath,
		PartialDir:   *partialDir,
		Upload:       *upload,
		Concurrency:  *concurrency,
		Yank:         yankCfg,
	}

	repo := repodata.NewClient(nil)
	backends := backendset.Build(ch)
	// A production deployment supplies its own S3/R2-backed
	// store.Gateway externally; --upload against this runner lands in
	// an in-process store rather than a real bucket.
	gw := memstore.New()

	result, err := worker.Run(ctx, repo, backends, gw, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("worker run failed")
	}
	fmt.Fprintf(os.Stderr, "shard %s complete: %d new artifacts, wrote %s\n", flag.Arg(0), len(result.Partial), result.Path)
}

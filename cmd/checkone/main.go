// Command checkone fetches, extracts, and yank-filters a single conda
// artifact by filename and subdir, printing the resulting mapping entry
// and optionally uploading it. Useful for debugging one artifact
// without running a full shard.
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
	"github.com/prefix-dev/conda-pypi-map/extractor"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/internal/backendset"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
	"github.com/prefix-dev/conda-pypi-map/yank"
)

func main() {
	var (
		channelName = flag.String("channel", "conda-forge", "channel name")
		backendName = flag.String("backend", "", "force a specific backend: oci, streamed, full, libcfgraph (default: automatic selection)")
		yankPath    = flag.String("yank-config", "", "path to a yank rules YAML file")
		upload      = flag.Bool("upload", false, "upload the resulting mapping entry to the object store")
	)
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: checkone [flags] <filename> <subdir>")
		os.Exit(2)
	}
	filename, subdir := flag.Arg(0), flag.Arg(1)

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
	repo := repodata.NewClient(nil)

	// Repodata.json carries the artifact's declared sha256; resolving it
	// here keeps every backend's mandatory checksum verification in
	// force, rather than constructing an ArtifactRef with no expected
	// hash.
	records, err := repo.FetchRepodata(ctx, ch, condapypi.Subdir(subdir), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("fetching repodata")
	}
	rec, ok := records[filename]
	if !ok {
		log.Fatal().Str("filename", filename).Str("subdir", subdir).Msg("artifact not found in repodata")
	}

	ref := condapypi.ArtifactRef{Channel: ch.Name, Subdir: condapypi.Subdir(subdir), Filename: filename, SHA256: rec.SHA256}

	backends := backendset.Build(ch)
	name := fetcher.Choose(ch.Name, ch.SupportsRange, false, filename)
	if *backendName != "" {
		name = fetcher.Name(*backendName)
	}
	b, ok := backends[name]
	if !ok {
		log.Fatal().Str("backend", string(name)).Msg("unknown backend")
	}

	info, err := b.Fetch(ctx, ref)
	if err != nil {
		log.Fatal().Err(err).Msg("fetching artifact")
	}

	entry, err := extractor.Extract(log, info, filename)
	if err != nil {
		log.Fatal().Err(err).Msg("extracting mapping entry")
	}

	if yank.ShouldYank(yankCfg, entry.CondaName, condapypi.Subdir(subdir), ch.Name) {
		fmt.Fprintln(os.Stderr, "artifact is yanked, no mapping entry produced")
		return
	}

	if *upload {
		// A production deployment supplies its own S3/R2-backed
		// store.Gateway externally; this runner's --upload lands in an
		// in-process store for inspection rather than a real bucket.
		gw := memstore.New()
		if err := gw.PutMapping(ctx, rec.SHA256, entry); err != nil {
			log.Fatal().Err(err).Msg("uploading mapping entry")
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(entry); err != nil {
		log.Fatal().Err(err).Msg("encoding mapping entry")
	}
}

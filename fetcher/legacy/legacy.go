// Package legacy implements the C2 legacy metadata mirror backend: a
// plain HTTPS fetch against conda.anaconda.org (or a self-hosted
// repodata-mirror, tried second on failure), for channels or subdirs
// the other three backends don't cover. Grounded on
// fetcher/fulldownload's chassis, narrowed to a fixed two-host URL
// template rather than a caller-supplied one.
package legacy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/internal/httputil"
	"github.com/prefix-dev/conda-pypi-map/pkg/condaarchive"
)

// Timeout is the default per-artifact fetch timeout, per spec.md §5.
const Timeout = 120 * time.Second

// DefaultHosts are tried in order: the canonical anaconda.org mirror,
// then a repodata-mirror fallback.
var DefaultHosts = []string{
	"https://conda.anaconda.org",
	"https://repodata-mirror.prefix.dev",
}

// Backend is the legacy-mirror fetcher.Backend implementation.
type Backend struct {
	HTTP  *http.Client
	Hosts []string
}

// New builds a Backend using a pooled, retrying HTTP client and
// DefaultHosts if hc/hosts are nil/empty.
func New(hc *http.Client, hosts []string) *Backend {
	if hc == nil {
		hc = httputil.PooledClient()
	}
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	return &Backend{HTTP: hc, Hosts: hosts}
}

var _ fetcher.Backend = (*Backend)(nil)

// Fetch downloads ref from the first reachable host, verifies its
// sha256, and parses it.
func (b *Backend) Fetch(ctx context.Context, ref condapypi.ArtifactRef) (*fetcher.ArtifactInfo, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "fetcher/legacy.Backend.Fetch").
		Str("filename", ref.Filename).
		Logger()

	want, err := hex.DecodeString(ref.SHA256)
	if err != nil {
		return nil, fmt.Errorf("legacy: bad sha256 %q: %w", ref.SHA256, err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var lastErr error
	for _, host := range b.Hosts {
		url := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(host, "/"), ref.Channel, ref.Subdir, ref.Filename)
		info, err := b.fetchOne(ctx, url, want, ref.SHA256)
		if err == nil {
			return info, nil
		}
		log.Warn().Err(err).Str("url", url).Msg("legacy mirror fetch failed, trying next host")
		lastErr = err
	}
	return nil, fmt.Errorf("legacy: all hosts failed for %s: %w", ref.Filename, lastErr)
}

func (b *Backend) fetchOne(ctx context.Context, url string, want []byte, wantHex string) (*fetcher.ArtifactInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse(resp, http.StatusOK); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "condapypi-legacy-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h := sha256.New()
	if _, err := io.Copy(tmp, io.TeeReader(resp.Body, h)); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	if got := h.Sum(nil); wantHex != "" && !bytes.Equal(got, want) {
		return nil, fmt.Errorf("sha256 mismatch: got %s, want %s", hex.EncodeToString(got), wantHex)
	}

	size, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var arch *condaarchive.Archive
	switch {
	case strings.HasSuffix(url, ".conda"):
		arch, err = condaarchive.OpenConda(tmp, size)
	case strings.HasSuffix(url, ".tar.bz2"):
		arch, err = condaarchive.OpenTarBz2(tmp)
	default:
		return nil, fmt.Errorf("unsupported artifact extension: %s", url)
	}
	if err != nil {
		return nil, fetcher.WrapFallback(err)
	}

	info := arch.Info()
	recipe, err := fetcher.ParseRecipe(info.RenderedRecipe)
	if err != nil {
		return nil, err
	}
	name, version := fetcher.IndexNameVersion(info.IndexJSON)
	return &fetcher.ArtifactInfo{
		Name:             name,
		Version:          version,
		Index:            info.IndexJSON,
		About:            info.AboutJSON,
		RenderedRecipe:   recipe,
		RawRecipe:        info.RawRecipe,
		CondaBuildConfig: info.CondaBuildConfig,
		Files:            info.Files,
	}, nil
}

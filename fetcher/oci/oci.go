// Package oci implements the C2 OCI backend: conda-forge artifacts
// mirrored as single-layer OCI images under ghcr.io/channel-mirrors,
// tagged by "<subdir>-<filename-without-extension>" (colons and plus
// signs, invalid in OCI tags, are replaced with underscores). The
// backend pulls the manifest, fetches its one layer, and treats the
// decompressed layer bytes as the artifact's tar payload — grounded on
// go-containerregistry's documented pull path (name.ParseReference +
// remote.Image), the same library the packaged squashfs helper in the
// reference corpus builds v1.Image values against.
package oci

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/pkg/condaarchive"
)

// Timeout is the default per-artifact fetch timeout, per spec.md §5.
const Timeout = 120 * time.Second

// DefaultRepository is the conda-forge artifact mirror.
const DefaultRepository = "ghcr.io/channel-mirrors/conda-forge"

// Backend is the OCI fetcher.Backend implementation.
type Backend struct {
	// Repository is the OCI repository holding artifact mirrors, e.g.
	// DefaultRepository.
	Repository string
}

// New builds a Backend against repo, or DefaultRepository if repo is
// empty.
func New(repo string) *Backend {
	if repo == "" {
		repo = DefaultRepository
	}
	return &Backend{Repository: repo}
}

var _ fetcher.Backend = (*Backend)(nil)

// Fetch pulls ref's mirrored layer and parses it with OpenConda when
// ref.Filename ends in .conda, else as a .tar.bz2 artifact with
// OpenTarBz2 (go-containerregistry decompresses the layer's own
// gzip/zstd media-type wrapper, if any, transparently).
func (b *Backend) Fetch(ctx context.Context, ref condapypi.ArtifactRef) (*fetcher.ArtifactInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	tag := Tag(ref.Subdir, ref.Filename)
	refStr := fmt.Sprintf("%s:%s", b.Repository, tag)
	r, err := name.ParseReference(refStr)
	if err != nil {
		return nil, fmt.Errorf("oci: parsing reference %q: %w", refStr, err)
	}

	img, err := remote.Image(r, remote.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("oci: pulling %s: %w", refStr, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("oci: reading layers for %s: %w", refStr, err)
	}
	if len(layers) != 1 {
		return nil, fmt.Errorf("oci: %s: expected 1 layer, found %d", refStr, len(layers))
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return nil, fmt.Errorf("oci: opening layer for %s: %w", refStr, err)
	}
	defer rc.Close()

	var arch *condaarchive.Archive
	switch {
	case strings.HasSuffix(ref.Filename, ".conda"):
		buf, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("oci: reading layer for %s: %w", refStr, err)
		}
		arch, err = condaarchive.OpenConda(sliceReaderAt(buf), int64(len(buf)))
		if err != nil {
			return nil, fetcher.WrapFallback(err)
		}
	default:
		arch, err = condaarchive.OpenTarBz2(rc)
		if err != nil {
			return nil, fetcher.WrapFallback(err)
		}
	}

	info := arch.Info()
	recipe, err := fetcher.ParseRecipe(info.RenderedRecipe)
	if err != nil {
		return nil, err
	}
	condaName, version := fetcher.IndexNameVersion(info.IndexJSON)
	return &fetcher.ArtifactInfo{
		Name:             condaName,
		Version:          version,
		Index:            info.IndexJSON,
		About:            info.AboutJSON,
		RenderedRecipe:   recipe,
		RawRecipe:        info.RawRecipe,
		CondaBuildConfig: info.CondaBuildConfig,
		Files:            info.Files,
	}, nil
}

// Tag derives an OCI tag from a subdir and filename, since OCI tags
// exclude the ':' and '+' characters conda filenames sometimes carry in
// their build string.
func Tag(subdir condapypi.Subdir, filename string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(filename, ".conda"), ".tar.bz2")
	raw := string(subdir) + "-" + name
	replacer := strings.NewReplacer(":", "_", "+", "_")
	return replacer.Replace(raw)
}

type sliceReaderAt []byte

func (s sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

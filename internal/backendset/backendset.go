// Package backendset wires the four fetcher backends into a
// worker.Backends map for a given channel, the construction every
// worker/check-one entrypoint needs and would otherwise repeat.
package backendset

import (
	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/fetcher/fulldownload"
	"github.com/prefix-dev/conda-pypi-map/fetcher/legacy"
	"github.com/prefix-dev/conda-pypi-map/fetcher/oci"
	"github.com/prefix-dev/conda-pypi-map/fetcher/rangefetch"
	"github.com/prefix-dev/conda-pypi-map/internal/httputil"
	"github.com/prefix-dev/conda-pypi-map/worker"
)

// Build constructs every backend for ch, using a shared pooled+retrying
// HTTP client.
func Build(ch condapypi.Channel) worker.Backends {
	hc := httputil.PooledClient()
	urlFn := func(ref condapypi.ArtifactRef) string { return fetcher.URLFor(ch, ref) }

	return worker.Backends{
		fetcher.OCI:          oci.New(oci.DefaultRepository),
		fetcher.RangeStream:  rangefetch.New(hc, urlFn),
		fetcher.FullDownload: fulldownload.New(hc, urlFn),
		fetcher.Legacy:       legacy.New(hc, legacy.DefaultHosts),
	}
}

package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/fetcher"
	"github.com/prefix-dev/conda-pypi-map/repodata"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
)

type fakeBackend struct {
	info *fetcher.ArtifactInfo
	err  error
}

func (f *fakeBackend) Fetch(ctx context.Context, ref condapypi.ArtifactRef) (*fetcher.ArtifactInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func TestRunProcessesNewArtifactAndUploads(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"packages.conda": {
			"numpy-1.26.4-py311h64a7726_0.conda": {"name":"numpy","version":"1.26.4","sha256":"aaa"}
		}}`))
	}))
	defer svr.Close()

	repo := repodata.NewClient(svr.Client())
	gw := memstore.New()

	backends := Backends{
		fetcher.RangeStream: &fakeBackend{info: &fetcher.ArtifactInfo{
			Name: "numpy",
			Files: []string{
				"lib/python3.11/site-packages/numpy-1.26.4.dist-info/METADATA",
			},
		}},
	}

	result, err := Run(context.Background(), repo, backends, gw, Options{
		Channel: condapypi.Channel{Name: "conda-forge", BaseURLs: []string{svr.URL}},
		Subdir:  "linux-64",
		Letter:  "n",
		Upload:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Partial) != 1 {
		t.Fatalf("expected 1 new mapping, got %d", len(result.Partial))
	}
	entry, ok := result.Partial["aaa"]
	if !ok {
		t.Fatalf("expected entry keyed by sha256 aaa, got %v", result.Partial)
	}
	if entry.CondaName != "numpy" {
		t.Errorf("unexpected conda name: %v", entry.CondaName)
	}

	uploaded, ok := gw.Mapping("aaa")
	if !ok {
		t.Fatal("expected mapping to be uploaded to the gateway")
	}
	if uploaded.CondaName != "numpy" {
		t.Errorf("unexpected uploaded conda name: %v", uploaded.CondaName)
	}
}

func TestRunSkipsArtifactNotMatchingLetter(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"packages.conda": {
			"numpy-1.26.4-py311h64a7726_0.conda": {"name":"numpy","version":"1.26.4","sha256":"aaa"}
		}}`))
	}))
	defer svr.Close()

	repo := repodata.NewClient(svr.Client())
	gw := memstore.New()
	backends := Backends{
		fetcher.RangeStream: &fakeBackend{info: &fetcher.ArtifactInfo{Name: "numpy"}},
	}

	result, err := Run(context.Background(), repo, backends, gw, Options{
		Channel: condapypi.Channel{Name: "conda-forge", BaseURLs: []string{svr.URL}},
		Subdir:  "linux-64",
		Letter:  "s",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Partial) != 0 {
		t.Errorf("expected no artifacts to match letter s, got %v", result.Partial)
	}
}

func TestRunYanksConfiguredPackage(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"packages.conda": {
			"pyqt-5.15.9-py311h_0.conda": {"name":"pyqt","version":"5.15.9","sha256":"ccc"}
		}}`))
	}))
	defer svr.Close()

	repo := repodata.NewClient(svr.Client())
	gw := memstore.New()
	backends := Backends{
		fetcher.RangeStream: &fakeBackend{info: &fetcher.ArtifactInfo{
			Name:  "pyqt",
			Files: []string{"site-packages/pyqt5-5.15.9.dist-info/METADATA"},
		}},
	}

	result, err := Run(context.Background(), repo, backends, gw, Options{
		Channel: condapypi.Channel{Name: "conda-forge", BaseURLs: []string{svr.URL}},
		Subdir:  "linux-64",
		Letter:  "p",
		Yank: condapypi.YankConfig{Packages: []condapypi.YankRule{
			{Name: "pyqt", Platforms: []string{"linux-64"}, Channels: []string{"conda-forge"}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Partial) != 0 {
		t.Errorf("expected yanked package to be excluded, got %v", result.Partial)
	}
}

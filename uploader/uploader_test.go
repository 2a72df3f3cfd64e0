package uploader

import (
	"context"
	"testing"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/store/memstore"
)

func TestRunUploadsNewLookups(t *testing.T) {
	gw := memstore.New()
	lookups := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy"}},
	}
	result, err := Run(context.Background(), gw, "conda-forge", lookups, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Uploaded) != 1 || result.Uploaded[0] != "numpy" {
		t.Errorf("expected numpy to be uploaded, got %v", result.Uploaded)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("expected no skips on first upload, got %v", result.Skipped)
	}
}

func TestRunSkipsUnchangedLookup(t *testing.T) {
	gw := memstore.New()
	lookups := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy"}},
	}
	if _, err := Run(context.Background(), gw, "conda-forge", lookups, false); err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), gw, "conda-forge", lookups, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Uploaded) != 0 {
		t.Errorf("expected no re-upload of unchanged lookup, got %v", result.Uploaded)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "numpy" {
		t.Errorf("expected numpy to be skipped as unchanged, got %v", result.Skipped)
	}
}

func TestRunForceReuploadsUnchangedLookup(t *testing.T) {
	gw := memstore.New()
	lookups := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy"}},
	}
	if _, err := Run(context.Background(), gw, "conda-forge", lookups, false); err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), gw, "conda-forge", lookups, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Uploaded) != 1 || result.Uploaded[0] != "numpy" {
		t.Errorf("expected forced re-upload of unchanged lookup, got %v", result.Uploaded)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("expected no skips when force is set, got %v", result.Skipped)
	}
}

func TestRunReuploadsChangedLookup(t *testing.T) {
	gw := memstore.New()
	first := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy"}},
	}
	if _, err := Run(context.Background(), gw, "conda-forge", first, false); err != nil {
		t.Fatal(err)
	}

	second := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy", "1.26.5": "numpy"}},
	}
	result, err := Run(context.Background(), gw, "conda-forge", second, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Uploaded) != 1 {
		t.Errorf("expected changed lookup to be re-uploaded, got %v", result.Uploaded)
	}
}

func TestRunDeletesStaleLookups(t *testing.T) {
	gw := memstore.New()
	first := map[string]condapypi.PyPIPackageLookup{
		"numpy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "numpy", CondaVersions: map[string]string{"1.26.4": "numpy"}},
		"scipy": {FormatVersion: 1, Channel: "conda-forge", PyPIName: "scipy", CondaVersions: map[string]string{"1.11.0": "scipy"}},
	}
	if _, err := Run(context.Background(), gw, "conda-forge", first, false); err != nil {
		t.Fatal(err)
	}

	second := map[string]condapypi.PyPIPackageLookup{
		"numpy": first["numpy"],
	}
	result, err := Run(context.Background(), gw, "conda-forge", second, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Deleted) != 1 || result.Deleted[0] != "scipy" {
		t.Errorf("expected scipy to be deleted as stale, got %v", result.Deleted)
	}

	if _, err := gw.GetPyPILookup(context.Background(), "conda-forge", "scipy"); err == nil {
		t.Error("expected scipy lookup to be gone after stale cleanup")
	}
}

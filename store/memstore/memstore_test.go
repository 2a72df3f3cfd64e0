package memstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/prefix-dev/conda-pypi-map"
)

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetIndex(ctx, "conda-forge"); err == nil {
		t.Fatal("expected ErrNotFound on empty store")
	} else if cErr, ok := err.(*condapypi.Error); !ok || cErr.Kind != condapypi.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := condapypi.IndexMapping{
		"abc123": {CondaName: "numpy", PackageName: "numpy-1.26.0-py311h.conda"},
	}
	if err := s.PutIndex(ctx, "conda-forge", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetIndex(ctx, "conda-forge")
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}

	// Returned map must be a copy: mutating it must not affect the store.
	got["abc123"] = condapypi.MappingEntry{CondaName: "mutated"}
	got2, err := s.GetIndex(ctx, "conda-forge")
	if err != nil {
		t.Fatal(err)
	}
	if got2["abc123"].CondaName != "numpy" {
		t.Error("GetIndex leaked internal state to caller mutation")
	}
}

func TestLookupHashMetadata(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.HeadPyPILookupHash(ctx, "conda-forge", "numpy"); err == nil {
		t.Fatal("expected ErrNotFound before any write")
	}

	body := []byte(`{"pypi_name":"numpy"}`)
	if err := s.PutPyPILookup(ctx, "conda-forge", "numpy", body, "deadbeef"); err != nil {
		t.Fatal(err)
	}
	hash, err := s.HeadPyPILookupHash(ctx, "conda-forge", "numpy")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "deadbeef" {
		t.Errorf("got hash %q, want deadbeef", hash)
	}

	names, err := s.ListPyPILookupNames(ctx, "conda-forge")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "numpy" {
		t.Errorf("got names %v, want [numpy]", names)
	}

	if err := s.DeletePyPILookup(ctx, "conda-forge", "numpy"); err != nil {
		t.Fatal(err)
	}
	names, err = s.ListPyPILookupNames(ctx, "conda-forge")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names after delete, got %v", names)
	}
}

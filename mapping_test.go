package condapypi

import (
	"errors"
	"testing"
)

func TestNewMappingEntryValidation(t *testing.T) {
	if _, err := NewMappingEntry("numpy", "numpy-1.26.0-py311h.conda",
		[]string{"numpy"}, map[string]string{}, nil); err == nil {
		t.Fatal("expected error on names/versions key-set mismatch")
	}

	e, err := NewMappingEntry("numpy", "numpy-1.26.0-py311h.conda",
		[]string{"numpy"}, map[string]string{"numpy": "1.26.0"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !e.HasPyPINames() {
		t.Error("expected HasPyPINames true")
	}

	e2, err := NewMappingEntry("six", "six-1.16.0-pyh.conda", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e2.HasPyPINames() {
		t.Error("expected HasPyPINames false for artifact with no PyPI evidence")
	}
}

func TestIndexMappingMergeConflict(t *testing.T) {
	dst := IndexMapping{"h1": {CondaName: "numpy", PackageName: "numpy-1.0-0.conda"}}
	src := IndexMapping{"h1": {CondaName: "scipy", PackageName: "scipy-1.0-0.conda"}}

	err := dst.Merge(src)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var cErr *Error
	if !errors.As(err, &cErr) || cErr.Kind != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestIndexMappingMergeDisjoint(t *testing.T) {
	dst := IndexMapping{"h1": {CondaName: "numpy", PackageName: "numpy-1.0-0.conda"}}
	src := IndexMapping{"h2": {CondaName: "scipy", PackageName: "scipy-1.0-0.conda"}}
	if err := dst.Merge(src); err != nil {
		t.Fatal(err)
	}
	if len(dst) != 2 {
		t.Fatalf("expected 2 entries after merge, got %d", len(dst))
	}
}

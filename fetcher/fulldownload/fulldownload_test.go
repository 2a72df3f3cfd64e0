package fulldownload

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prefix-dev/conda-pypi-map"
)

func buildTarBz2(t *testing.T, files map[string]string) []byte {
	t.Helper()
	// compress/bzip2 is decode-only in the standard library, so the
	// fixture is a plain tar; the backend only cares that the filename
	// ends in .tar.bz2. The condaarchive package tests likewise exercise
	// the shared tar-walking path with a plain tar, not a bzip2 stream.
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetchVerifiesChecksumMismatch(t *testing.T) {
	body := buildTarBz2(t, map[string]string{"info/index.json": `{"name":"six","version":"1.16.0"}`})
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer svr.Close()

	b := New(svr.Client(), func(ref condapypi.ArtifactRef) string { return svr.URL + "/" + ref.Filename })
	ref := condapypi.ArtifactRef{Channel: "conda-forge", Subdir: "noarch", Filename: "six-1.16.0-0.tar.bz2", SHA256: hex.EncodeToString(make([]byte, 32))}

	_, err := b.Fetch(context.Background(), ref)
	if err == nil {
		t.Fatal("expected sha256 mismatch error")
	}
}

func TestFetchUnsupportedExtension(t *testing.T) {
	body := []byte("not an archive")
	sum := sha256.Sum256(body)
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer svr.Close()

	b := New(svr.Client(), func(ref condapypi.ArtifactRef) string { return svr.URL + "/" + ref.Filename })
	ref := condapypi.ArtifactRef{Channel: "conda-forge", Subdir: "noarch", Filename: "six-1.16.0-0.zip", SHA256: hex.EncodeToString(sum[:])}

	if _, err := b.Fetch(context.Background(), ref); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}

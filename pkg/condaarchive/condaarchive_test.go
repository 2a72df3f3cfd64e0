package condaarchive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"sort"
	"testing"
)

// compress/bzip2 is read-only in the standard library, so there's no way
// to build a .tar.bz2 fixture in-process. OpenConda is exercised
// end-to-end; the tar-walking and filtering logic it shares with
// OpenTarBz2 is exercised directly against a plain (uncompressed) tar.
func TestOpenConda(t *testing.T) {
	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)

	addTarMember := func(zipName string, files map[string]string) {
		var tbuf bytes.Buffer
		tw := tar.NewWriter(&tbuf)
		names := make([]string, 0, len(files))
		for n := range files {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			content := files[n]
			if err := tw.WriteHeader(&tar.Header{Name: n, Size: int64(len(content)), Mode: 0o644}); err != nil {
				t.Fatal(err)
			}
			if _, err := tw.Write([]byte(content)); err != nil {
				t.Fatal(err)
			}
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
		fw, err := zw.Create(zipName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(tbuf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}

	addTarMember("info-x.tar", map[string]string{
		"info/index.json": `{"name":"numpy"}`,
		"info/paths.json": `{"paths":[{"_path":"lib/python3.11/site-packages/numpy-1.26.0.dist-info/METADATA"},{"_path":"lib/python3.11/site-packages/numpy/__init__.pyc"}]}`,
	})
	addTarMember("pkg-x.tar", map[string]string{
		"lib/python3.11/site-packages/numpy-1.26.0.dist-info/METADATA": "Name: numpy\nVersion: 1.26.0\n",
		"test/fixture.py": "should be excluded",
	})
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	a, err := OpenConda(bytes.NewReader(zbuf.Bytes()), int64(zbuf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	info := a.Info()
	if len(info.IndexJSON) == 0 {
		t.Error("missing index.json")
	}
	if len(info.Files) != 1 || info.Files[0] != "lib/python3.11/site-packages/numpy-1.26.0.dist-info/METADATA" {
		t.Errorf("unexpected filtered files: %v", info.Files)
	}
	if _, ok := a.Member("test/fixture.py"); ok {
		t.Error("test/ member should have been excluded at read time")
	}
	if _, ok := a.Member("lib/python3.11/site-packages/numpy-1.26.0.dist-info/METADATA"); !ok {
		t.Error("expected payload member to be present")
	}
}

func TestOpenTarBz2Filtering(t *testing.T) {
	// Exercise the filtering/member logic shared with OpenTarBz2 without
	// depending on an external bzip2 encoder: build a plain tar, run it
	// through readTar directly.
	var tbuf bytes.Buffer
	tw := tar.NewWriter(&tbuf)
	files := map[string]string{
		"info/index.json":           `{"name":"six"}`,
		"site-packages/six.pyc":     "excluded",
		"licenses/LICENSE":          "excluded",
		"site-packages/six-1.16.0.dist-info/METADATA": "Name: six\nVersion: 1.16.0\n",
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := files[n]
		if err := tw.WriteHeader(&tar.Header{Name: n, Size: int64(len(c)), Mode: 0o644}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(c)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	a := &Archive{members: make(map[string][]byte)}
	if err := a.readTar(tar.NewReader(bytes.NewReader(tbuf.Bytes()))); err != nil {
		t.Fatal(err)
	}
	if len(a.members) != 2 {
		t.Fatalf("expected 2 members after filtering, got %d: %v", len(a.members), a.Names())
	}
	if _, ok := a.Member("site-packages/six.pyc"); ok {
		t.Error(".pyc member should have been excluded")
	}
	if _, ok := a.Member("licenses/LICENSE"); ok {
		t.Error("licenses/ member should have been excluded")
	}
}

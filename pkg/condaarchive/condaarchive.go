// Package condaarchive is a unified reader over the two conda artifact
// container formats: legacy ".tar.bz2" (a single bzip2-compressed tar
// holding both the "info/" metadata directory and the package payload)
// and ".conda" (a zip holding separate "info-*.tar{,.zst}" and
// "pkg-*.tar{,.zst}" members).
//
// It exists as the first-class routine in place of patching an upstream
// parser to understand both shapes: callers get one member set regardless
// of which container the artifact arrived in.
package condaarchive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// excludedDirs are directory components never surfaced in the member set,
// regardless of container format.
var excludedDirs = map[string]bool{
	"test":     true,
	"tests":    true,
	"licenses": true,
}

// excludedSuffixes are file suffixes stripped from the member set.
var excludedSuffixes = []string{".pyc", ".txt"}

func included(name string) bool {
	for part := range strings.SplitSeq(name, "/") {
		if excludedDirs[part] {
			return false
		}
	}
	for _, suf := range excludedSuffixes {
		if strings.HasSuffix(name, suf) {
			return false
		}
	}
	return true
}

// Archive is the filtered member set of a single conda artifact: a path
// to content-bytes map spanning both its info/ metadata and its package
// payload.
type Archive struct {
	members map[string][]byte
}

// OpenTarBz2 reads a legacy ".tar.bz2" artifact from r.
func OpenTarBz2(r io.Reader) (*Archive, error) {
	a := &Archive{members: make(map[string][]byte)}
	if err := a.readTar(tar.NewReader(bzip2.NewReader(r))); err != nil {
		return nil, fmt.Errorf("condaarchive: reading tar.bz2: %w", err)
	}
	return a, nil
}

// OpenConda reads a ".conda" artifact (an outer zip containing
// "info-*.tar{,.zst}" and "pkg-*.tar{,.zst}" members) from r/size.
func OpenConda(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("condaarchive: opening zip: %w", err)
	}
	a := &Archive{members: make(map[string][]byte)}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "info-") && !strings.HasPrefix(f.Name, "pkg-") {
			continue
		}
		if err := a.readZipMember(f); err != nil {
			return nil, fmt.Errorf("condaarchive: member %s: %w", f.Name, err)
		}
	}
	return a, nil
}

func (a *Archive) readZipMember(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var tr *tar.Reader
	if strings.HasSuffix(f.Name, ".zst") {
		zd, err := zstd.NewReader(rc)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		defer zd.Close()
		b, err := io.ReadAll(zd)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		tr = tar.NewReader(bytes.NewReader(b))
	} else {
		tr = tar.NewReader(rc)
	}
	return a.readTar(tr)
}

func (a *Archive) readTar(tr *tar.Reader) error {
	for {
		hdr, err := tr.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(hdr.Name)
		if !included(name) {
			continue
		}
		buf := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, buf); err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		a.members[name] = buf
	}
}

// Member returns the bytes of the named archive member.
func (a *Archive) Member(name string) ([]byte, bool) {
	b, ok := a.members[name]
	return b, ok
}

// Names returns the filtered, sorted list of every member path, info/
// metadata included. The extractor does not walk this list; it scans
// the file list built by Info from paths.json or info/files.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.members))
	for n := range a.members {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

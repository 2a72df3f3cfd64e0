// Package relations implements the C9 relations builder: denormalize a
// channel's canonical IndexMapping into PackageRelation rows, serialize
// them as gzipped newline-delimited JSON, and derive the inverted
// PyPIPackageLookup view used by the PyPI-to-conda resolution API.
// Grounded on claircore's libvuln/jsonblob streaming gzip-JSON writer for
// the NDJSON+gzip serialization shape.
package relations

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/pkg/levenshtein"
	"github.com/prefix-dev/conda-pypi-map/pkg/pep503"
)

// Result is one build's output.
type Result struct {
	Table           condapypi.RelationsTable
	Metadata        condapypi.RelationsMetadata
	Lookups         map[string]condapypi.PyPIPackageLookup
	SerializedTable []byte
}

// Build denormalizes idx into PackageRelation rows, derives per-PyPI-name
// lookups, and computes the run's metadata. now stamps
// RelationsMetadata.GeneratedAt.
func Build(channel string, idx condapypi.IndexMapping, now time.Time) (Result, error) {
	var rows []condapypi.PackageRelation
	condaPackages := make(map[string]bool)

	for hash, entry := range idx {
		if !entry.HasPyPINames() {
			continue
		}
		condaPackages[entry.CondaName+"\x00"+hash] = true
		for _, name := range entry.PyPINormalizedNames {
			version := entry.Versions[name]
			rows = append(rows, condapypi.NewPackageRelation(entry.CondaName, entry.PackageName, hash, name, version, channel, entry.DirectURL))
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.PyPIName != b.PyPIName {
			return a.PyPIName < b.PyPIName
		}
		if a.PyPIVersion != b.PyPIVersion {
			return a.PyPIVersion < b.PyPIVersion
		}
		if a.CondaName != b.CondaName {
			return a.CondaName < b.CondaName
		}
		return a.CondaHash < b.CondaHash
	})

	table := condapypi.RelationsTable{Channel: channel, Rows: rows}
	uniquePyPI := make(map[string]bool)
	for _, r := range rows {
		uniquePyPI[pep503.Normalize(r.PyPIName)] = true
	}

	serialized, err := SerializeTable(table)
	if err != nil {
		return Result{}, fmt.Errorf("relations: serializing table: %w", err)
	}

	lookups := deriveLookups(channel, table.Rows)

	meta := condapypi.RelationsMetadata{
		FormatVersion:       condapypi.CurrentLookupFormatVersion,
		Channel:             channel,
		GeneratedAt:         now.UTC().Format(time.RFC3339),
		TotalRelations:      len(table.Rows),
		UniqueCondaPackages: len(condaPackages),
		UniquePyPIPackages:  len(uniquePyPI),
		Description:         fmt.Sprintf("conda ↔ PyPI relations for channel %q, generated by run %s", channel, uuid.New()),
	}

	return Result{Table: table, Metadata: meta, Lookups: lookups, SerializedTable: serialized}, nil
}

// deriveLookups groups rows by PEP 503 normalized PyPI name and, within
// each name, by version, choosing the conda package whose name has
// minimal Levenshtein distance to the PyPI name, ties broken
// lexicographically by conda_name.
func deriveLookups(channel string, rows []condapypi.PackageRelation) map[string]condapypi.PyPIPackageLookup {
	type candidate struct {
		condaName string
		distance  int
	}
	byName := make(map[string]map[string][]candidate) // normalized pypi name -> version -> candidates

	displayName := make(map[string]string)
	for _, r := range rows {
		norm := pep503.Normalize(r.PyPIName)
		displayName[norm] = r.PyPIName
		if byName[norm] == nil {
			byName[norm] = make(map[string][]candidate)
		}
		byName[norm][r.PyPIVersion] = append(byName[norm][r.PyPIVersion], candidate{
			condaName: r.CondaName,
			distance:  levenshtein.Distance(r.CondaName, r.PyPIName),
		})
	}

	lookups := make(map[string]condapypi.PyPIPackageLookup, len(byName))
	for norm, versions := range byName {
		condaVersions := make(map[string]string, len(versions))
		for version, candidates := range versions {
			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].distance != candidates[j].distance {
					return candidates[i].distance < candidates[j].distance
				}
				return candidates[i].condaName < candidates[j].condaName
			})
			condaVersions[version] = candidates[0].condaName
		}
		lookups[norm] = condapypi.PyPIPackageLookup{
			FormatVersion: condapypi.CurrentLookupFormatVersion,
			Channel:       channel,
			PyPIName:      displayName[norm],
			CondaVersions: condaVersions,
		}
	}
	return lookups
}

// SerializeTable encodes table's rows as newline-delimited JSON,
// gzip-compressed, one row per line in table.Rows order.
func SerializeTable(table condapypi.RelationsTable) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	bw := bufio.NewWriter(gz)
	enc := json.NewEncoder(bw)
	for _, row := range table.Rows {
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

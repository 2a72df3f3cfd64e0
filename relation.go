package condapypi

import (
	"encoding/hex"
	"strings"
)

// PackageRelation is one (sha256, pypi_name) row derived from an
// IndexMapping entry.
type PackageRelation struct {
	CondaName     string   `json:"conda_name"`
	CondaFilename string   `json:"conda_filename"`
	CondaHash     string   `json:"conda_hash"`
	PyPIName      string   `json:"pypi_name"`
	PyPIVersion   string   `json:"pypi_version"`
	Channel       string   `json:"channel"`
	DirectURL     []string `json:"direct_url,omitempty"`
}

// NewPackageRelation builds a PackageRelation, lowercasing condaHash as
// required by its invariant.
func NewPackageRelation(condaName, condaFilename, condaHash, pypiName, pypiVersion, channel string, directURL []string) PackageRelation {
	return PackageRelation{
		CondaName:     condaName,
		CondaFilename: condaFilename,
		CondaHash:     strings.ToLower(condaHash),
		PyPIName:      pypiName,
		PyPIVersion:   pypiVersion,
		Channel:       channel,
		DirectURL:     directURL,
	}
}

// Valid reports whether CondaHash is lowercase hex, per this type's
// invariant.
func (r PackageRelation) Valid() bool {
	if r.CondaHash != strings.ToLower(r.CondaHash) {
		return false
	}
	_, err := hex.DecodeString(r.CondaHash)
	return err == nil
}

// RelationsTable is an ordered collection of PackageRelation rows,
// serialized as gzipped newline-delimited JSON.
type RelationsTable struct {
	Channel string
	Rows    []PackageRelation
}

// RelationsMetadata describes a generated RelationsTable.
type RelationsMetadata struct {
	FormatVersion        int    `json:"format_version"`
	Channel              string `json:"channel"`
	GeneratedAt          string `json:"generated_at"`
	TotalRelations       int    `json:"total_relations"`
	UniqueCondaPackages  int    `json:"unique_conda_packages"`
	UniquePyPIPackages   int    `json:"unique_pypi_packages"`
	Description          string `json:"description,omitempty"`
}

// PyPIPackageLookup is the inverted, per-(channel, pypi_name) view: for
// each PyPI version, which conda package name best provides it.
type PyPIPackageLookup struct {
	FormatVersion int               `json:"format_version"`
	Channel       string            `json:"channel"`
	PyPIName      string            `json:"pypi_name"`
	CondaVersions map[string]string `json:"conda_versions"`
}

// CurrentLookupFormatVersion is the format_version stamped onto newly
// generated PyPIPackageLookup objects.
const CurrentLookupFormatVersion = 1

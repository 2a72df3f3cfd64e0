// Package pep503 implements name normalization as defined by PEP 503
// (the PyPI "simple" repository API): a name is normalized by lowercasing
// it and collapsing any run of "-", "_", or "." into a single "-".
package pep503

import (
	"regexp"
	"strings"
)

var separators = regexp.MustCompile(`[-_.]+`)

// Normalize returns the PEP 503 normalized form of name.
func Normalize(name string) string {
	return separators.ReplaceAllLiteralString(strings.ToLower(name), "-")
}

// Package directory resolves distinguished names against a directory
// service. All DN comparisons are case-insensitive.
package directory

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// Standard errors
var (
	ErrNotFound = errors.New("directory: entry not found")
)

// Entry is one directory object. Attribute names are lowercased.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// First returns the first value of an attribute, case-insensitively
func (e *Entry) First(attr string) (string, bool) {
	if e == nil {
		return "", false
	}
	values := e.Attributes[strings.ToLower(attr)]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Directory looks up a single entry by DN. Implementations return
// ErrNotFound for a missing entry and any other error for lookup failures.
type Directory interface {
	Lookup(ctx context.Context, dn string) (*Entry, error)
	Close() error
}

var folder = cases.Fold()

// NormalizeDN trims and case-folds a DN for use as a lookup key
func NormalizeDN(dn string) string {
	return folder.String(strings.TrimSpace(dn))
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func normalizeAttributes(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		key := strings.ToLower(k)
		out[key] = append(out[key], v...)
	}
	return out
}

// Package filters holds the mutating stages of the keep-set pipeline.
//
// Every filter receives the whole keep set and replaces its content in one
// step. Filters only ever drop paths and applying one twice is the same as
// applying it once.
package filters

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kukaryambik/slimfs/pkg/paths"
)

var ErrInvalidPath = errors.New("path is not valid UTF-8 text")

// Filter narrows a keep set in place.
type Filter interface {
	Filter(set paths.Set) error
}

// fileName returns the last element of p, failing on names that are not text.
func fileName(p string) (string, error) {
	name := filepath.Base(p)
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	return name, nil
}

func hasAnySuffix(name string, suffixes []string) bool {
	name = strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

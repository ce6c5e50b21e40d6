// Package scanner finds the files a target needs: shared objects and
// interpreters from ELF headers, and package contents from the dpkg database.
package scanner

import (
	"errors"
	"strings"
)

var (
	ErrTargetNotFound  = errors.New("target not found")
	ErrPackageNotFound = errors.New("package not found")
)

// Autodeps sets how far the package scanner follows package dependencies.
type Autodeps int

const (
	// Undef adds nothing from the package database.
	Undef Autodeps = iota
	// Free adds the owning package and all of its dependencies, transitively.
	Free
	// Clean adds the owning package and its direct dependencies.
	Clean
	// Tight adds the owning package only.
	Tight
)

func ParseAutodeps(s string) Autodeps {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return Free
	case "clean":
		return Clean
	case "tight":
		return Tight
	}
	return Undef
}

func (a Autodeps) String() string {
	switch a {
	case Free:
		return "free"
	case Clean:
		return "clean"
	case Tight:
		return "tight"
	}
	return "undef"
}

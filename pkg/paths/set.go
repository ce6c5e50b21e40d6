package paths

import (
	"path/filepath"
	"slices"
)

// Set is a set of absolute image paths.
type Set map[string]struct{}

// NewSet returns a set holding the given paths.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	s.Add(items...)
	return s
}

// Add inserts paths, cleaned.
func (s Set) Add(items ...string) {
	for _, p := range items {
		s[filepath.Clean(p)] = struct{}{}
	}
}

// Remove deletes paths; missing ones are ignored.
func (s Set) Remove(items ...string) {
	for _, p := range items {
		delete(s, filepath.Clean(p))
	}
}

func (s Set) Has(p string) bool {
	_, ok := s[filepath.Clean(p)]
	return ok
}

func (s Set) Len() int { return len(s) }

// Union adds every member of other to s.
func (s Set) Union(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Replace swaps the whole content of s for items.
func (s Set) Replace(items []string) {
	clear(s)
	s.Add(items...)
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	c.Union(s)
	return c
}

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

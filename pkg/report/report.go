// Package report prints the outcome of a dry run.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/util"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Summary counts files and bytes on each side of the split.
type Summary struct {
	Kept         int    `json:"kept" yaml:"kept"`
	KeptBytes    uint64 `json:"kept_bytes" yaml:"kept_bytes"`
	Removed      int    `json:"removed" yaml:"removed"`
	RemovedBytes uint64 `json:"removed_bytes" yaml:"removed_bytes"`
}

// Document is the machine-readable form of a report.
type Document struct {
	Keep    []string `json:"keep" yaml:"keep"`
	Remove  []string `json:"remove,omitempty" yaml:"remove,omitempty"`
	Summary Summary  `json:"summary" yaml:"summary"`
}

// Reporter presents the sorted keep and removal lists.
type Reporter interface {
	Report(keep, removed []string) error
}

// New returns the reporter for format writing to out.
func New(format, root string, out io.Writer, showRemoved bool) (Reporter, error) {
	root = util.Coalesce(root, "/")
	switch strings.ToLower(format) {
	case FormatText, "":
		return &Text{Root: root, Out: out, ShowRemoved: showRemoved}, nil
	case FormatJSON:
		return &JSON{Root: root, Out: out, ShowRemoved: showRemoved}, nil
	case FormatYAML:
		return &YAML{Root: root, Out: out, ShowRemoved: showRemoved}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// fileIdentity uniquely identifies a file using device ID and inode number.
type fileIdentity struct {
	dev uint64
	ino uint64
}

// measure counts existing entries and their size, hardlinks counted once.
func measure(root string, list []string) (int, uint64) {
	seen := make(map[fileIdentity]struct{})
	var count int
	var size uint64
	for _, p := range list {
		fi, err := os.Lstat(paths.Join(root, p))
		if err != nil {
			continue
		}
		count++
		if fi.IsDir() {
			continue
		}
		if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
			id := fileIdentity{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		size += uint64(fi.Size())
	}
	return count, size
}

func summarize(root string, keep, removed []string) Summary {
	var s Summary
	s.Kept, s.KeptBytes = measure(root, keep)
	s.Removed, s.RemovedBytes = measure(root, removed)
	return s
}

func document(root string, keep, removed []string, showRemoved bool) Document {
	doc := Document{Keep: keep, Summary: summarize(root, keep, removed)}
	if doc.Keep == nil {
		doc.Keep = []string{}
	}
	if showRemoved {
		doc.Remove = removed
	}
	return doc
}

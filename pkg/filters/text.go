package filters

import (
	"slices"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

// TextOptions selects which kinds of text files are dropped.
type TextOptions struct {
	Docs     bool
	ManPages bool
	Info     bool
	Headers  bool
	Logs     bool
}

// TextFilter drops individual documentation, manual, header and log files.
type TextFilter struct {
	opts TextOptions
}

func NewTextFilter(opts TextOptions) *TextFilter {
	return &TextFilter{opts: opts}
}

func (f *TextFilter) Filter(set paths.Set) error {
	in := set.Sorted()
	out := make([]string, 0, len(in))
	for _, p := range in {
		name, err := fileName(p)
		if err != nil {
			return err
		}
		if kind := f.match(p, name); kind != "" {
			logrus.Tracef("Text file dropped (%s): %s", kind, p)
			continue
		}
		out = append(out, p)
	}

	set.Replace(out)
	return nil
}

func (f *TextFilter) match(p, name string) string {
	switch {
	case f.opts.ManPages && strings.Contains(p, "/man/") && manPageRe.MatchString(name):
		return "manpage"
	case f.opts.Info && strings.Contains(p, "/info/") && infoRe.MatchString(name):
		return "info"
	case f.opts.Logs && logRe.MatchString(name):
		return "log"
	case f.opts.Headers && hasAnySuffix(name, HeaderSuffixes):
		return "header"
	case f.opts.Docs && IsDocFile(name):
		return "doc"
	}
	return ""
}

// IsDocFile reports whether a file name looks like human documentation:
// a known doc suffix or a stub such as README, LICENSE.txt or NEWS.Debian.
func IsDocFile(name string) bool {
	if hasAnySuffix(name, DocSuffixes) {
		return true
	}
	stem, _, _ := strings.Cut(name, ".")
	return slices.Contains(DocStubFiles, stem)
}

package filters

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

// DirOptions selects which subtrees are dropped as a whole.
type DirOptions struct {
	Locales     bool
	KeepLocales []string
	DocDirs     bool
	Dirs        []string
}

// DirFilter drops whole directories: documentation trees, foreign locales and
// user-listed subtrees.
type DirFilter struct {
	opts DirOptions
	dirs []string
}

// Only entries named like a locale are judged; C, POSIX and files such as
// locale.alias or locale-archive never match.
var localeNameRe = regexp.MustCompile(`^[a-z]{2,3}(_[A-Za-z0-9]+)?([.@][^/]*)?$`)

func NewDirFilter(opts DirOptions) *DirFilter {
	var dirs []string
	if opts.DocDirs {
		dirs = append(dirs, DocDirs...)
	}
	for _, d := range opts.Dirs {
		dirs = append(dirs, filepath.Clean("/"+d))
	}
	return &DirFilter{opts: opts, dirs: dirs}
}

func (f *DirFilter) Filter(set paths.Set) error {
	in := set.Sorted()
	out := make([]string, 0, len(in))
	for _, p := range in {
		if _, err := fileName(p); err != nil {
			return err
		}
		if paths.PathFrom(p, f.dirs) {
			logrus.Tracef("Directory entry dropped: %s", p)
			continue
		}
		if f.opts.Locales && f.foreignLocale(p) {
			logrus.Tracef("Locale entry dropped: %s", p)
			continue
		}
		out = append(out, p)
	}

	set.Replace(out)
	return nil
}

// foreignLocale reports whether p lives in the subtree of a locale that is
// not in the keep list.
func (f *DirFilter) foreignLocale(p string) bool {
	for _, base := range LocaleDirs {
		if p == base || !paths.PathFrom(p, []string{base}) {
			continue
		}
		comp, _, _ := strings.Cut(strings.TrimPrefix(p, base+"/"), "/")
		if !localeNameRe.MatchString(comp) {
			return false
		}
		return !f.keepLocale(comp)
	}
	return false
}

func (f *DirFilter) keepLocale(name string) bool {
	for _, k := range f.opts.KeepLocales {
		if name == k ||
			strings.HasPrefix(name, k+".") ||
			strings.HasPrefix(name, k+"@") ||
			strings.HasPrefix(name, k+"_") {
			return true
		}
	}
	return false
}

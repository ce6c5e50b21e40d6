package scanner

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
)

const (
	dpkgInfo   = "/var/lib/dpkg/info"
	dpkgStatus = "/var/lib/dpkg/status"
)

// Version constraints, architecture restrictions and build profiles.
var depNoiseRe = regexp.MustCompile(`\([^)]*\)|\[[^]]*\]|<[^>]*>`)

// DebScanner answers package questions from the dpkg database of an image.
type DebScanner struct {
	root string

	loaded    bool
	lists     map[string][]string // package -> .list files, one per architecture
	owners    map[string]string   // listed path -> package
	byName    map[string][]string // base name -> listed paths
	installed map[string]bool
	provides  map[string]string   // virtual package -> provider
	depends   map[string][]string // package -> raw Depends and Pre-Depends
}

func NewDebScanner(root string) *DebScanner {
	return &DebScanner{root: util.Coalesce(root, "/")}
}

// Contents returns the files listed for a package that exist in the image.
// Directories are left out. A bare name covers every installed architecture;
// "name:arch" only that one.
func (s *DebScanner) Contents(name string) ([]string, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	base, arch, _ := strings.Cut(strings.TrimSpace(name), ":")
	var lists []string
	for _, l := range s.lists[base] {
		if arch == "" || arch == "any" || listStem(l) == base+":"+arch {
			lists = append(lists, l)
		}
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrPackageNotFound)
	}

	var out []string
	for _, l := range lists {
		entries, err := s.readList(l)
		if err != nil {
			return nil, err
		}
		for _, p := range entries {
			fi, err := os.Lstat(paths.Join(s.root, p))
			if err != nil || fi.IsDir() {
				continue
			}
			out = append(out, p)
		}
	}
	out = util.UniqString(out)
	logrus.Tracef("Package %s: %d files", name, len(out))
	return out, nil
}

// Scan returns the contents of the package owning path, widened by mode.
func (s *DebScanner) Scan(path string, mode Autodeps) ([]string, error) {
	if mode == Undef {
		return nil, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	owner := s.owner(path)
	if owner == "" {
		logrus.Debugf("No package owns %s", path)
		return nil, nil
	}

	pkgs := []string{owner}
	switch mode {
	case Clean:
		pkgs = append(pkgs, s.directDeps(owner)...)
	case Free:
		pkgs = s.allDeps(owner)
	}
	logrus.Debugf("%s belongs to %s, %s mode adds %v", path, owner, mode, pkgs)

	var out []string
	for _, p := range util.UniqString(pkgs) {
		files, err := s.Contents(p)
		if errors.Is(err, ErrPackageNotFound) {
			logrus.Debugf("Dependency %s has no file list", p)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func (s *DebScanner) owner(p string) string {
	p = filepath.Clean("/" + p)
	if o, ok := s.owners[p]; ok {
		return o
	}

	// Merged /usr: dpkg may list /bin/sh while the target is /usr/bin/sh
	resolved, err := paths.Resolve(s.root, p)
	if err != nil {
		return ""
	}
	if o, ok := s.owners[resolved]; ok {
		return o
	}
	for _, cand := range s.byName[filepath.Base(resolved)] {
		if r, err := paths.Resolve(s.root, cand); err == nil && r == resolved {
			return s.owners[cand]
		}
	}
	return ""
}

func (s *DebScanner) directDeps(name string) []string {
	var out []string
	for _, field := range s.depends[name] {
		for _, dep := range strings.Split(field, ",") {
			if pick := s.pickAlternative(dep); pick != "" && pick != name {
				out = append(out, pick)
			}
		}
	}
	return out
}

func (s *DebScanner) allDeps(name string) []string {
	seen := map[string]bool{name: true}
	order := []string{name}
	for i := 0; i < len(order); i++ {
		for _, d := range s.directDeps(order[i]) {
			if !seen[d] {
				seen[d] = true
				order = append(order, d)
			}
		}
	}
	return order
}

// pickAlternative returns the first installed package of "a (>= 1) | b".
func (s *DebScanner) pickAlternative(dep string) string {
	for _, alt := range strings.Split(dep, "|") {
		alt = pkgName(strings.TrimSpace(depNoiseRe.ReplaceAllString(alt, "")))
		if alt == "" {
			continue
		}
		if s.installed[alt] {
			return alt
		}
		if prov, ok := s.provides[alt]; ok {
			return prov
		}
	}
	return ""
}

func (s *DebScanner) load() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	s.lists = map[string][]string{}
	s.owners = map[string]string{}
	s.byName = map[string][]string{}
	s.installed = map[string]bool{}
	s.provides = map[string]string{}
	s.depends = map[string][]string{}

	lists, err := filepath.Glob(filepath.Join(paths.Join(s.root, dpkgInfo), "*.list"))
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		logrus.Debug("No dpkg database found")
		return nil
	}

	for _, l := range lists {
		name := pkgName(listStem(l))
		s.lists[name] = append(s.lists[name], l)

		entries, err := s.readList(l)
		if err != nil {
			return err
		}
		for _, p := range entries {
			s.owners[p] = name
			base := filepath.Base(p)
			s.byName[base] = append(s.byName[base], p)
		}
	}

	if err := s.readStatus(); err != nil {
		return err
	}
	logrus.Debugf("dpkg database: %d packages, %d files", len(s.lists), len(s.owners))
	return nil
}

func (s *DebScanner) readList(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", file, err)
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "/." {
			continue
		}
		out = append(out, filepath.Clean(line))
	}
	return out, nil
}

// readStatus parses the control paragraphs of the dpkg status file.
func (s *DebScanner) readStatus() error {
	file, err := os.Open(paths.Join(s.root, dpkgStatus))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	para := map[string]string{}
	var last string

	flush := func() {
		name := pkgName(para["Package"])
		if name != "" && strings.HasSuffix(para["Status"], " installed") {
			s.installed[name] = true
			for _, f := range []string{"Pre-Depends", "Depends"} {
				if v := para[f]; v != "" {
					s.depends[name] = append(s.depends[name], v)
				}
			}
			for _, v := range strings.Split(para["Provides"], ",") {
				if v = pkgName(strings.TrimSpace(depNoiseRe.ReplaceAllString(v, ""))); v != "" {
					if _, ok := s.provides[v]; !ok {
						s.provides[v] = name
					}
				}
			}
		}
		para = map[string]string{}
		last = ""
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case line[0] == ' ' || line[0] == '\t':
			if last != "" {
				para[last] += " " + strings.TrimSpace(line)
			}
		default:
			k, v, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			last = k
			para[k] = strings.TrimSpace(v)
		}
	}
	flush()
	return scanner.Err()
}

// listStem returns "name" or "name:arch" of a dpkg .list file.
func listStem(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".list")
}

// pkgName drops the ":arch" or ":any" qualifier.
func pkgName(s string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(s), ":")
	return name
}

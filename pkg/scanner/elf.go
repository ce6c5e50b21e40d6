package scanner

import (
	"bufio"
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
)

var (
	// DefaultLibDirs are searched after ld.so.conf entries.
	DefaultLibDirs = []string{"/lib", "/usr/lib", "/lib64", "/usr/lib64", "/usr/local/lib"}

	// ExecPath is where "#!/usr/bin/env prog" interpreters are looked up.
	ExecPath = []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin", "/sbin", "/bin"}

	multiarch = map[elf.Machine]string{
		elf.EM_X86_64:  "x86_64-linux-gnu",
		elf.EM_386:     "i386-linux-gnu",
		elf.EM_AARCH64: "aarch64-linux-gnu",
		elf.EM_ARM:     "arm-linux-gnueabihf",
		elf.EM_PPC64:   "powerpc64le-linux-gnu",
		elf.EM_S390:    "s390x-linux-gnu",
		elf.EM_RISCV:   "riscv64-linux-gnu",
	}
)

const ldConf = "/etc/ld.so.conf"

// ElfScanner resolves the loader and shared object dependencies of binaries
// and the interpreters of scripts inside an image root.
type ElfScanner struct {
	root   string
	ldDirs []string
	loaded bool
}

func NewElfScanner(root string) *ElfScanner {
	return &ElfScanner{root: util.Coalesce(root, "/")}
}

// object is a dependency waiting to be examined.
type object struct {
	path  string
	class elf.Class
	mach  elf.Machine
}

// Scan returns the image paths target needs at run time, target included.
func (s *ElfScanner) Scan(target string) ([]string, error) {
	target = filepath.Clean("/" + target)
	if !paths.FileExists(paths.Join(s.root, target)) {
		return nil, fmt.Errorf("%s: %w", target, ErrTargetNotFound)
	}
	s.loadLdConf()

	found := paths.NewSet()
	seen := paths.NewSet()
	queue := []string{target}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		resolved, err := paths.Resolve(s.root, p)
		if err != nil {
			return nil, fmt.Errorf("error resolving %s: %w", p, err)
		}
		found.Add(p, resolved)
		if seen.Has(resolved) {
			continue
		}
		seen.Add(resolved)

		deps, err := s.examine(resolved)
		if err != nil {
			return nil, err
		}
		queue = append(queue, deps...)
	}

	logrus.Debugf("%s needs %d files", target, found.Len())
	return found.Sorted(), nil
}

// examine returns the direct dependencies of one file.
func (s *ElfScanner) examine(p string) ([]string, error) {
	full := paths.Join(s.root, p)
	fi, err := os.Stat(full)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, nil
	}

	f, err := elf.Open(full)
	if err != nil {
		var fe *elf.FormatError
		if errors.As(err, &fe) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return s.interpreter(p)
		}
		return nil, fmt.Errorf("error reading %s: %w", p, err)
	}
	defer f.Close()

	var deps []string

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		b, err := io.ReadAll(prog.Open())
		if err != nil {
			return nil, fmt.Errorf("error reading interpreter of %s: %w", p, err)
		}
		loader := string(bytes.TrimRight(b, "\x00"))
		if paths.FileExists(paths.Join(s.root, loader)) {
			deps = append(deps, loader)
		} else {
			logrus.Warnf("Loader %s of %s not found", loader, p)
		}
	}

	needed, err := f.ImportedLibraries()
	if err != nil {
		// Static binaries have no dynamic section
		return deps, nil
	}

	self := object{path: p, class: f.Class, mach: f.Machine}
	dirs := s.searchDirs(f, self)
	for _, lib := range needed {
		if found := s.findLib(lib, dirs, self); found != "" {
			logrus.Tracef("%s: %s => %s", p, lib, found)
			deps = append(deps, found)
		} else {
			logrus.Warnf("Library %s needed by %s not found", lib, p)
		}
	}
	return deps, nil
}

// searchDirs lists library directories in loader order: DT_RPATH (ignored
// when DT_RUNPATH is set), DT_RUNPATH, ld.so.conf, then the defaults.
func (s *ElfScanner) searchDirs(f *elf.File, self object) []string {
	origin := filepath.Dir(self.path)
	expand := func(tag elf.DynTag) []string {
		vals, _ := f.DynString(tag)
		var out []string
		for _, v := range vals {
			for _, d := range filepath.SplitList(v) {
				d = strings.ReplaceAll(d, "${ORIGIN}", origin)
				d = strings.ReplaceAll(d, "$ORIGIN", origin)
				if d == "" || strings.Contains(d, "$") {
					continue
				}
				if !filepath.IsAbs(d) {
					d = filepath.Join(origin, d)
				}
				out = append(out, filepath.Clean(d))
			}
		}
		return out
	}

	var dirs []string
	runpath := expand(elf.DT_RUNPATH)
	if len(runpath) == 0 {
		dirs = append(dirs, expand(elf.DT_RPATH)...)
	}
	dirs = append(dirs, runpath...)
	dirs = append(dirs, s.ldDirs...)
	if triplet, ok := multiarch[self.mach]; ok {
		dirs = append(dirs, "/lib/"+triplet, "/usr/lib/"+triplet)
	}
	dirs = append(dirs, DefaultLibDirs...)
	return util.UniqString(dirs)
}

// findLib returns the first candidate with a class and machine matching self.
func (s *ElfScanner) findLib(lib string, dirs []string, self object) string {
	var candidates []string
	if strings.Contains(lib, "/") {
		candidates = []string{filepath.Join(filepath.Dir(self.path), lib)}
		if filepath.IsAbs(lib) {
			candidates = []string{filepath.Clean(lib)}
		}
	} else {
		for _, d := range dirs {
			candidates = append(candidates, filepath.Join(d, lib))
		}
	}

	for _, c := range candidates {
		resolved, err := paths.Resolve(s.root, c)
		if err != nil {
			continue
		}
		f, err := elf.Open(paths.Join(s.root, resolved))
		if err != nil {
			continue
		}
		match := f.Class == self.class && f.Machine == self.mach
		f.Close()
		if match {
			return c
		}
		logrus.Tracef("Skipping %s: wrong class or machine", c)
	}
	return ""
}

// interpreter returns the interpreter of a "#!" script, if p is one.
func (s *ElfScanner) interpreter(p string) ([]string, error) {
	file, err := os.Open(paths.Join(s.root, p))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	line, err := bufio.NewReaderSize(file, 512).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading %s: %w", p, err)
	}
	if !strings.HasPrefix(line, "#!") {
		return nil, nil
	}

	fields := strings.Fields(line[2:])
	if len(fields) == 0 {
		return nil, nil
	}
	deps := []string{fields[0]}

	if filepath.Base(fields[0]) == "env" {
		for _, arg := range fields[1:] {
			if strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
				continue
			}
			if prog := s.lookPath(arg); prog != "" {
				deps = append(deps, prog)
			} else {
				logrus.Warnf("Interpreter %s of %s not found", arg, p)
			}
			break
		}
	}

	var out []string
	for _, d := range deps {
		if paths.FileExists(paths.Join(s.root, d)) {
			out = append(out, d)
		} else {
			logrus.Warnf("Interpreter %s of %s not found", d, p)
		}
	}
	return out, nil
}

func (s *ElfScanner) lookPath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	for _, dir := range ExecPath {
		c := filepath.Join(dir, name)
		if paths.FileExists(paths.Join(s.root, c)) {
			return c
		}
	}
	return ""
}

// loadLdConf reads the library directories listed by /etc/ld.so.conf and the
// files it includes.
func (s *ElfScanner) loadLdConf() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.ldDirs = util.UniqString(s.parseLdConf(ldConf, 0))
	logrus.Tracef("ld.so.conf directories: %v", s.ldDirs)
}

func (s *ElfScanner) parseLdConf(conf string, depth int) []string {
	if depth > 8 {
		return nil
	}

	data, err := os.ReadFile(paths.Join(s.root, conf))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("Error reading %s: %v", conf, err)
		}
		return nil
	}

	var dirs []string
	for _, line := range strings.Split(string(data), "\n") {
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "hwcap "):
		case strings.HasPrefix(line, "include "):
			pattern := strings.TrimSpace(strings.TrimPrefix(line, "include "))
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(conf), pattern)
			}
			matches, _ := filepath.Glob(paths.Join(s.root, pattern))
			slices.Sort(matches)
			for _, m := range matches {
				rel := paths.Join("/", strings.TrimPrefix(m, filepath.Clean(s.root)))
				dirs = append(dirs, s.parseLdConf(rel, depth+1)...)
			}
		default:
			dirs = append(dirs, filepath.Clean(line))
		}
	}
	return dirs
}

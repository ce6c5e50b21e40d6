// Package rootfs compares a keep set with the real tree of an image.
package rootfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dissector splits the tree under an image root into kept, protected and
// removable entries.
type Dissector struct {
	root      string
	protect   *paths.ProtectConf
	protected []string
}

func NewDissector(root string) *Dissector {
	root = util.Coalesce(root, "/")
	return &Dissector{root: root, protect: paths.Protect(root)}
}

// KeepPackageDBs protects package manager databases.
func (d *Dissector) KeepPackageDBs(v bool) *Dissector {
	d.protect.KeepPackageDBs(v)
	d.protected = nil
	return d
}

// KeepTemp protects temporary directories.
func (d *Dissector) KeepTemp(v bool) *Dissector {
	d.protect.KeepTemp(v)
	d.protected = nil
	return d
}

// KeepTree protects whole subtrees.
func (d *Dissector) KeepTree(p ...string) *Dissector {
	d.protect.AddPaths(p...)
	d.protected = nil
	return d
}

// Protected reports whether an image path lies in a protected subtree.
func (d *Dissector) Protected(p string) bool {
	return paths.PathFrom(filepath.Clean(p), d.protectedList())
}

func (d *Dissector) protectedList() []string {
	if d.protected == nil {
		d.protected = append([]string{}, d.protect.List()...)
	}
	return d.protected
}

// Dissect returns every file, symlink or special file under the root that is
// neither kept nor protected. Directories are never returned.
func (d *Dissector) Dissect(keep paths.Set) (paths.Set, error) {
	d.protectedList()
	kept, trees := d.expand(keep)
	logrus.Debugf("Dissecting %s: %d kept paths, %d kept trees", d.root, kept.Len(), len(trees))

	w := &walker{d: d, kept: kept, trees: trees, out: paths.NewSet()}
	if err := w.walk("/"); err != nil {
		return nil, err
	}

	logrus.Debugf("Dissected %s: %d paths to remove", d.root, w.out.Len())
	return w.out, nil
}

// expand adds the real location and the symlinked ancestors of every kept
// path, and collects kept directories.
func (d *Dissector) expand(keep paths.Set) (paths.Set, []string) {
	kept := keep.Clone()
	for p := range keep {
		resolved, links, err := paths.ResolveTrail(d.root, p)
		if err != nil {
			logrus.Warnf("Error resolving %s: %v", p, err)
			continue
		}
		kept.Add(resolved)
		kept.Add(links...)
	}

	var trees []string
	for p := range kept {
		if fi, err := os.Lstat(paths.Join(d.root, p)); err == nil && fi.IsDir() {
			trees = append(trees, p)
		}
	}
	return kept, trees
}

type walker struct {
	d     *Dissector
	kept  paths.Set
	trees []string

	mu  sync.Mutex
	out paths.Set
}

func (w *walker) walk(p string) error {
	if p != "/" && w.d.Protected(p) {
		logrus.Tracef("Path %s is protected", p)
		return nil
	}

	fi, err := os.Lstat(paths.Join(w.d.root, p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error getting file info for path %s: %w", p, err)
	}

	if !fi.IsDir() {
		if !w.kept.Has(p) {
			w.mu.Lock()
			w.out.Add(p)
			w.mu.Unlock()
		}
		return nil
	}

	if p != "/" && paths.PathFrom(p, w.trees) {
		logrus.Tracef("Directory %s is kept", p)
		return nil
	}

	entries, err := os.ReadDir(paths.Join(w.d.root, p))
	if err != nil {
		return fmt.Errorf("error reading directory %s: %w", p, err)
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, entry := range entries {
		child := filepath.Join(p, entry.Name())
		g.Go(func() error {
			return w.walk(child)
		})
	}
	return g.Wait()
}

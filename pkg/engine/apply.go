package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

// apply removes every path of the removal set, then sweeps empty directories
// and broken symlinks. Single failures are logged and skipped.
func (p *Processor) apply() error {
	var failed int
	for _, path := range p.removed.Sorted() {
		if err := os.Remove(paths.Join(p.root, path)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logrus.Debugf("Already gone: %s", path)
				continue
			}
			logrus.Errorf("Error removing %s: %v", path, err)
			failed++
			continue
		}
		logrus.Tracef("Removed %s", path)
	}
	if failed > 0 {
		logrus.Warnf("%d of %d paths could not be removed", failed, p.removed.Len())
	}

	p.sweep("/")
	return nil
}

// sweep walks dir bottom-up: broken symlinks go first, then every
// subdirectory that is empty once its own content has been swept. Kept and
// protected entries are exempt, broken links and empty dirs included.
// Errors are ignored.
func (p *Processor) sweep(dir string) {
	entries, err := os.ReadDir(paths.Join(p.root, dir))
	if err != nil {
		logrus.Debugf("Error reading directory %s: %v", dir, err)
		return
	}

	var dirs []string
	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if p.keep.Has(child) || p.dissector.Protected(child) {
			continue
		}

		switch {
		case e.Type()&fs.ModeSymlink != 0:
			if !paths.IsBrokenLink(p.root, child) {
				continue
			}
			if err := os.Remove(paths.Join(p.root, child)); err != nil {
				logrus.Debugf("Error removing broken link %s: %v", child, err)
				continue
			}
			logrus.Debugf("Removed broken link %s", child)
		case e.IsDir():
			dirs = append(dirs, child)
		}
	}

	for _, d := range dirs {
		p.sweep(d)
		full := paths.Join(p.root, d)
		if empty, err := paths.IsDirEmpty(full); err != nil || !empty {
			continue
		}
		if err := os.Remove(full); err != nil {
			logrus.Debugf("Error removing empty directory %s: %v", d, err)
			continue
		}
		logrus.Debugf("Removed empty directory %s", d)
	}
}

// mark creates the empty lockfile. An existing one is an error, so two runs
// racing over the same root cannot both complete.
func (p *Processor) mark() error {
	f, err := os.OpenFile(paths.Join(p.root, p.lockfile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarker, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrMarker, err)
	}
	logrus.Infof("Image root marked as processed: %s", p.lockfile)
	return nil
}

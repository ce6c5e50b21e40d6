// Package closure extends a keep set with the targets of its symlinks.
package closure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Symlinks returns the link targets of every symlink in set that set does not
// already hold. Relative targets are resolved lexically against the parent
// directory of the link. Only members of the input set are examined for
// links: a target that is itself a link is added but not followed unless it
// was already an input member.
func Symlinks(root string, set paths.Set) (paths.Set, error) {
	input := set.Sorted()
	out := paths.NewSet()

	for pass := 1; ; pass++ {
		added := 0
		for _, p := range input {
			target, ok, err := linkTarget(root, p)
			if err != nil {
				return nil, err
			}
			if !ok || set.Has(target) || out.Has(target) {
				continue
			}
			logrus.Tracef("Symlink %s -> %s", p, target)
			out.Add(target)
			added++
		}
		logrus.Debugf("Symlink closure pass %d: %d new targets", pass, added)
		if added == 0 {
			return out, nil
		}
	}
}

// linkTarget reads the target of p when p is a symlink and maps it to an
// image path. The parent of p is resolved inside the root first. Paths that
// cannot exist, a missing parent or one that is not a directory, are not links.
func linkTarget(root, p string) (string, bool, error) {
	dir, err := paths.Resolve(root, filepath.Dir(p))
	if err != nil {
		return "", false, fmt.Errorf("error resolving parent of %s: %w", p, err)
	}

	full := paths.Join(root, filepath.Join(dir, filepath.Base(p)))
	fi, err := os.Lstat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			logrus.Tracef("Not a link: %s: %v", p, err)
			return "", false, nil
		}
		return "", false, err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return "", false, nil
	}

	target, err := os.Readlink(full)
	if err != nil {
		return "", false, fmt.Errorf("error reading link %s: %w", p, err)
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target), true, nil
	}
	return filepath.Join(filepath.Dir(p), target), true, nil
}

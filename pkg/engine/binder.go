package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Binder confines the process to an image root and returns the effective
// root that image paths are joined onto afterwards.
type Binder interface {
	Bind(root string) (string, error)
}

// ChrootBinder changes the root directory of the whole process. It cannot be
// undone and needs CAP_SYS_CHROOT.
type ChrootBinder struct{}

func (ChrootBinder) Bind(root string) (string, error) {
	logrus.Debugf("Changing root to %s", root)
	if err := unix.Chroot(root); err != nil {
		return "", fmt.Errorf("chroot %s: %w", root, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return "", fmt.Errorf("chdir /: %w", err)
	}
	return "/", nil
}

// PrefixBinder leaves the process root alone; every path is resolved below
// root with chroot semantics instead.
type PrefixBinder struct{}

func (PrefixBinder) Bind(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	logrus.Debugf("Using %s as image root", abs)
	return abs, nil
}

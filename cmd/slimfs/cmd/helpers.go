package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/engine"
	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

const (
	confineChroot = "chroot"
	confinePrefix = "prefix"
)

// binder returns the root confinement named by --confine.
func (opts *CommandOptions) binder() (engine.Binder, error) {
	switch strings.ToLower(opts.Confine) {
	case confineChroot, "":
		return engine.ChrootBinder{}, nil
	case confinePrefix:
		return engine.PrefixBinder{}, nil
	}
	return nil, fmt.Errorf("unknown confinement %q", opts.Confine)
}

// systemPaths lists the image paths that are never archived or overwritten:
// kernel filesystems and whatever is mounted below the root.
func (opts *CommandOptions) systemPaths() []string {
	root, err := filepath.Abs(opts.RootFS)
	if err != nil {
		root = opts.RootFS
	}
	lst := paths.Protect(root).List()
	logrus.Debugf("Skipping %v", lst)
	return lst
}

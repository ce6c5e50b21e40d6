package paths

import (
	"path/filepath"
	"slices"

	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
)

var (
	SystemDirs = []string{"/proc", "/sys", "/dev", "/run", "/var/run"}

	PackageDBDirs = []string{
		"/var/lib/dpkg",
		"/var/lib/apt",
		"/var/lib/rpm",
		"/usr/lib/sysimage/rpm",
		"/var/lib/pacman",
		"/lib/apk/db",
	}

	TempDirs = []string{"/tmp", "/var/tmp"}
)

// ProtectConf describes subtrees of an image that are never touched.
type ProtectConf struct {
	Root         string
	PackageDBs   bool
	Temp         bool
	IgnoreMounts bool
	IgnoreSystem bool
	Paths        []string
}

// Protect returns a configuration protecting system dirs and mounts under root.
func Protect(root string) *ProtectConf {
	return &ProtectConf{
		Root:         root,
		IgnoreMounts: true,
		IgnoreSystem: true,
	}
}

func (conf *ProtectConf) KeepPackageDBs(v bool) *ProtectConf {
	conf.PackageDBs = v
	return conf
}

func (conf *ProtectConf) KeepTemp(v bool) *ProtectConf {
	conf.Temp = v
	return conf
}

func (conf *ProtectConf) AddPaths(p ...string) *ProtectConf {
	conf.Paths = append(conf.Paths, p...)
	return conf
}

// List generates the minimal list of protected image paths: entries nested
// under another protected entry are dropped.
func (conf *ProtectConf) List() []string {
	var all []string

	if conf.IgnoreSystem {
		all = append(all, SystemDirs...)
	}

	if conf.IgnoreMounts {
		mounts, err := GetMounts(util.Coalesce(conf.Root, "/"))
		if err != nil {
			// No /proc inside a fresh chroot is the usual case
			logrus.Debugf("Mount table is not readable: %v", err)
		}
		all = append(all, mounts...)
	}

	if conf.PackageDBs {
		all = append(all, PackageDBDirs...)
	}

	if conf.Temp {
		all = append(all, TempDirs...)
	}

	all = append(all, conf.Paths...)

	for i, p := range all {
		all[i] = filepath.Clean("/" + p)
	}
	all = util.UniqString(all)

	var lst []string
	for i, v := range all {
		// Create local copy of slice without v
		a := slices.Clone(all)
		a = slices.Delete(a, i, i+1)

		if PathFrom(v, a) {
			continue
		}
		lst = append(lst, v)
	}

	slices.Sort(lst)
	logrus.Tracef("Protected paths: %v", lst)
	return lst
}

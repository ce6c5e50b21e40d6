package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const maxHops = 40

var ErrSymlinkLoop = errors.New("too many levels of symbolic links")

// Resolve follows symlinks in an image path component by component, treating
// root as "/". Absolute link targets restart at the image root and ".." never
// climbs above it. Components that do not exist are appended lexically.
func Resolve(root, p string) (string, error) {
	resolved, _, err := ResolveTrail(root, p)
	return resolved, err
}

// ResolveTrail is Resolve that also returns every symlink crossed on the way.
func ResolveTrail(root, p string) (string, []string, error) {
	pending := split(p)
	cur := "/"
	hops := 0

	var links []string
	for len(pending) > 0 {
		c := pending[0]
		pending = pending[1:]

		switch c {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, c)
		fi, err := os.Lstat(Join(root, next))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				return filepath.Join(append([]string{next}, pending...)...), links, nil
			}
			return "", links, err
		}

		if fi.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}

		hops++
		if hops > maxHops {
			return "", links, fmt.Errorf("%s: %w", p, ErrSymlinkLoop)
		}

		target, err := os.Readlink(Join(root, next))
		if err != nil {
			return "", links, err
		}
		links = append(links, next)

		if filepath.IsAbs(target) {
			cur = "/"
		}
		pending = append(split(target), pending...)
	}

	return cur, links, nil
}

// IsBrokenLink reports whether p is a symlink whose target cannot be reached.
func IsBrokenLink(root, p string) bool {
	fi, err := os.Lstat(Join(root, p))
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	resolved, err := Resolve(root, p)
	if err != nil {
		return true
	}
	_, err = os.Lstat(Join(root, resolved))
	return err != nil
}

// IsSymlink reports whether p exists and is a symlink.
func IsSymlink(root, p string) bool {
	fi, err := os.Lstat(Join(root, p))
	return err == nil && fi.Mode()&os.ModeSymlink != 0
}

func split(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}

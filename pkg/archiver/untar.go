package archiver

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Chown restores entry ownership. It needs root.
var Chown = os.Getuid() == 0

// Untar unpacks the tar stream src below dst, skipping image paths in excl.
// Entry names never escape dst. Regular files are written as they are read;
// links and metadata are restored afterwards.
func Untar(src io.Reader, dst string, excl []string) error {
	root, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("error getting absolute path for %s: %w", dst, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("error creating %s: %w", root, err)
	}
	logrus.Debugf("Unpacking tar stream to %s", root)

	hdrs := make(map[string]*tar.Header)
	made := paths.NewSet(root)

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading archive entry: %w", err)
		}

		name := filepath.Clean("/" + hdr.Name)
		if name == "/" || paths.PathFrom(name, excl) {
			logrus.Tracef("Skipping entry %s", hdr.Name)
			continue
		}
		target := paths.Join(root, name)

		dir := filepath.Dir(target)
		if hdr.Typeflag == tar.TypeDir {
			dir = target
		}
		if err := mkdir(dir, made); err != nil {
			return err
		}

		hdrs[target] = hdr
		if hdr.Typeflag == tar.TypeReg {
			if err := writeFile(hdr, tr, target); err != nil {
				return err
			}
		}
	}

	passes := []func(string, *tar.Header) error{
		func(target string, hdr *tar.Header) error {
			if hdr.Typeflag != tar.TypeSymlink {
				return nil
			}
			return symlink(hdr, target)
		},
		func(target string, hdr *tar.Header) error {
			if hdr.Typeflag != tar.TypeLink {
				return nil
			}
			return hardlink(hdr, root, target)
		},
		func(target string, hdr *tar.Header) error {
			if hdr.Typeflag == tar.TypeReg || hdr.Typeflag == tar.TypeDir {
				restoreMeta(target, hdr)
			}
			return nil
		},
	}
	for _, fn := range passes {
		if err := fanOut(hdrs, fn); err != nil {
			return err
		}
	}
	return nil
}

// mkdir creates dir unless this run already did. Anything that is not a
// directory in its place is removed first.
func mkdir(dir string, made paths.Set) error {
	if made.Has(dir) {
		return nil
	}
	if fi, err := os.Lstat(dir); err == nil && !fi.IsDir() {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("error removing %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}
	for d := dir; !made.Has(d); d = filepath.Dir(d) {
		made.Add(d)
	}
	return nil
}

func fanOut(hdrs map[string]*tar.Header, fn func(string, *tar.Header) error) error {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for target, hdr := range hdrs {
		target, hdr := target, hdr
		g.Go(func() error {
			return fn(target, hdr)
		})
	}
	return g.Wait()
}

func writeFile(hdr *tar.Header, src io.Reader, target string) error {
	if fi, err := os.Lstat(target); err == nil {
		if fi.Mode().IsRegular() && fi.Size() == hdr.Size && fi.ModTime().Equal(hdr.ModTime) {
			logrus.Tracef("Unchanged file: %s", target)
			return nil
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("error replacing %s: %w", target, err)
		}
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("error creating file %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("error writing file %s: %w", target, err)
	}
	return out.Close()
}

func symlink(hdr *tar.Header, target string) error {
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("error replacing %s: %w", target, err)
	}
	if err := os.Symlink(hdr.Linkname, target); err != nil {
		return fmt.Errorf("error creating symbolic link %s: %w", target, err)
	}
	logrus.Tracef("Symlink %s -> %s", target, hdr.Linkname)
	return nil
}

func hardlink(hdr *tar.Header, root, target string) error {
	old := paths.Join(root, hdr.Linkname)
	if old == target {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("error replacing %s: %w", target, err)
	}
	if err := os.Link(old, target); err != nil {
		return fmt.Errorf("error creating hard link %s: %w", target, err)
	}
	logrus.Tracef("Hard link %s -> %s", target, old)
	return nil
}

func restoreMeta(target string, hdr *tar.Header) {
	if Chown {
		if err := os.Lchown(target, hdr.Uid, hdr.Gid); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("Error setting owner of %s: %v", target, err)
		}
	}
	if err := os.Chmod(target, hdr.FileInfo().Mode()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Error setting permissions of %s: %v", target, err)
	}
	if err := os.Chtimes(target, hdr.AccessTime, hdr.ModTime); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Error setting times of %s: %v", target, err)
	}
}

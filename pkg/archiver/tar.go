// Package archiver snapshots an image root into a tar archive and unpacks
// flattened image streams into a root.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/mholt/archiver/v4"
	"github.com/sirupsen/logrus"
)

// Format picks the archive format from the name of the destination file.
func Format(dst string) archiver.Archiver {
	tar := archiver.Tar{ContinueOnError: true}
	name := strings.ToLower(dst)
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		return archiver.CompressedArchive{Compression: archiver.Gz{}, Archival: tar}
	case strings.HasSuffix(name, ".zst"):
		return archiver.CompressedArchive{Compression: archiver.Zstd{}, Archival: tar}
	case strings.HasSuffix(name, ".xz"):
		return archiver.CompressedArchive{Compression: archiver.Xz{}, Archival: tar}
	}
	return tar
}

// Tar archives everything under root into dst, leaving out the image paths
// in excl. An existing dst is never overwritten.
func Tar(ctx context.Context, root, dst string, excl []string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", dst, err)
	}

	// The archive must not end up inside itself
	if rel, err := filepath.Rel(absRoot, absDst); err == nil && !strings.HasPrefix(rel, "..") {
		excl = append(append([]string{}, excl...), "/"+rel)
	}

	onDisk := make(map[string]string)
	var dirs []archiver.File
	if err := collect(absRoot, "/", excl, onDisk, &dirs); err != nil {
		return err
	}

	files, err := archiver.FilesFromDisk(nil, onDisk)
	if err != nil {
		return fmt.Errorf("error listing files of %s: %w", absRoot, err)
	}
	files = append(dirs, files...)

	out, err := os.OpenFile(absDst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating archive: %w", err)
	}
	defer out.Close()

	logrus.Debugf("Archiving %d entries of %s to %s", len(files), absRoot, absDst)
	if err := Format(absDst).Archive(ctx, out, files); err != nil {
		os.Remove(absDst)
		return fmt.Errorf("error writing archive %s: %w", absDst, err)
	}
	return out.Close()
}

// collect maps the image path p to archive entries. Directories holding an
// excluded path are descended into; everything else is added whole.
func collect(root, p string, excl []string, onDisk map[string]string, dirs *[]archiver.File) error {
	if paths.PathFrom(p, excl) {
		logrus.Tracef("Excluded from archive: %s", p)
		return nil
	}

	full := paths.Join(root, p)
	fi, err := os.Lstat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	name := strings.TrimPrefix(p, "/")
	if p != "/" && !(fi.IsDir() && paths.PathContains(p, excl)) {
		onDisk[full] = name
		return nil
	}

	if p != "/" {
		*dirs = append(*dirs, archiver.File{FileInfo: fi, NameInArchive: name})
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("error reading directory %s: %w", full, err)
	}
	for _, e := range entries {
		if err := collect(root, filepath.Join(p, e.Name()), excl, onDisk, dirs); err != nil {
			return err
		}
	}
	return nil
}

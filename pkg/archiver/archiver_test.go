package archiver_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kukaryambik/slimfs/pkg/archiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(data), 0644))
	}
}

func TestTarAndUntar(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"etc/hosts":         "127.0.0.1 localhost",
		"usr/bin/tool":      "tool",
		"var/cache/big.bin": "cache",
		"var/lib/state":     "state",
	})
	require.NoError(t, os.Symlink("usr/bin", filepath.Join(src, "bin")))

	archive := filepath.Join(t.TempDir(), "root.tar")
	require.NoError(t, archiver.Tar(context.Background(), src, archive, []string{"/var/cache"}))

	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()

	dst := t.TempDir()
	require.NoError(t, archiver.Untar(f, dst, nil))

	data, err := os.ReadFile(filepath.Join(dst, "etc/hosts"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost", string(data))

	assert.FileExists(t, filepath.Join(dst, "var/lib/state"))
	assert.NoFileExists(t, filepath.Join(dst, "var/cache/big.bin"))

	target, err := os.Readlink(filepath.Join(dst, "bin"))
	require.NoError(t, err)
	assert.Equal(t, "usr/bin", target)
	assert.FileExists(t, filepath.Join(dst, "bin/tool"))
}

func TestTarInsideRoot(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"data": "data"})

	archive := filepath.Join(src, "snapshot.tar")
	require.NoError(t, archiver.Tar(context.Background(), src, archive, nil))

	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()

	tr := tar.NewReader(f)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"data"}, names)
}

func TestTarCompressed(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a": "a"})

	archive := filepath.Join(t.TempDir(), "root.tar.gz")
	require.NoError(t, archiver.Tar(context.Background(), src, archive, nil))

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])
}

func TestTarRefusesOverwrite(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a": "a"})

	archive := filepath.Join(t.TempDir(), "root.tar")
	require.NoError(t, os.WriteFile(archive, []byte("keep me"), 0644))

	assert.Error(t, archiver.Tar(context.Background(), src, archive, nil))
	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestFormat(t *testing.T) {
	assert.IsType(t, archiver.Format("x.tar"), archiver.Format("x"))
	assert.NotEqual(t, archiver.Format("x.tar"), archiver.Format("x.tar.zst"))
	assert.Equal(t, archiver.Format("x.tgz"), archiver.Format("X.TAR.GZ"))
}

type entry struct {
	hdr  tar.Header
	body string
}

func stream(t *testing.T, entries ...entry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := e.hdr
		hdr.Size = int64(len(e.body))
		require.NoError(t, tw.WriteHeader(&hdr))
		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestUntarLinksAndModes(t *testing.T) {
	src := stream(t,
		entry{hdr: tar.Header{Name: "usr/", Typeflag: tar.TypeDir, Mode: 0755}},
		entry{hdr: tar.Header{Name: "usr/bin/run", Typeflag: tar.TypeReg, Mode: 0755}, body: "#!/bin/sh\n"},
		entry{hdr: tar.Header{Name: "usr/bin/run2", Typeflag: tar.TypeLink, Linkname: "usr/bin/run"}},
		entry{hdr: tar.Header{Name: "bin", Typeflag: tar.TypeSymlink, Linkname: "usr/bin"}},
		entry{hdr: tar.Header{Name: "tmp/skip", Typeflag: tar.TypeReg, Mode: 0644}, body: "skip"},
	)

	dst := t.TempDir()
	require.NoError(t, archiver.Untar(src, dst, []string{"/tmp"}))

	fi, err := os.Stat(filepath.Join(dst, "usr/bin/run"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), fi.Mode().Perm())

	linked, err := os.Stat(filepath.Join(dst, "usr/bin/run2"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(fi, linked))

	target, err := os.Readlink(filepath.Join(dst, "bin"))
	require.NoError(t, err)
	assert.Equal(t, "usr/bin", target)

	assert.NoDirExists(t, filepath.Join(dst, "tmp"))
}

func TestUntarStaysInside(t *testing.T) {
	parent := t.TempDir()
	dst := filepath.Join(parent, "root")
	src := stream(t,
		entry{hdr: tar.Header{Name: "../../escape", Typeflag: tar.TypeReg, Mode: 0644}, body: "x"},
		entry{hdr: tar.Header{Name: "hard", Typeflag: tar.TypeLink, Linkname: "../../escape"}},
	)

	require.NoError(t, archiver.Untar(src, dst, nil))

	assert.FileExists(t, filepath.Join(dst, "escape"))
	assert.FileExists(t, filepath.Join(dst, "hard"))
	assert.NoFileExists(t, filepath.Join(parent, "escape"))
}

package image

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage builds a single layer image holding files.
func testImage(t *testing.T, files map[string]string) v1.Image {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(data)),
		}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
	})
	require.NoError(t, err)
	img, err := mutate.AppendLayers(empty.Image, layer)
	require.NoError(t, err)
	return img
}

func TestExtract(t *testing.T) {
	img := &Image{
		Name: "test:latest",
		Image: testImage(t, map[string]string{
			"usr/bin/app":  "app",
			"etc/app.conf": "conf",
			"proc/junk":    "junk",
		}),
	}

	rootfs := t.TempDir()
	require.NoError(t, Extract(img, rootfs, "/proc"))

	data, err := os.ReadFile(filepath.Join(rootfs, "usr/bin/app"))
	require.NoError(t, err)
	assert.Equal(t, "app", string(data))
	assert.FileExists(t, filepath.Join(rootfs, "etc/app.conf"))
	assert.NoDirExists(t, filepath.Join(rootfs, "proc"))
}

func TestExtractExportError(t *testing.T) {
	orig := craneExportFunc
	craneExportFunc = func(v1.Image, io.Writer) error { return errors.New("boom") }
	defer func() { craneExportFunc = orig }()

	err := Extract(&Image{Name: "test"}, t.TempDir())
	assert.ErrorContains(t, err, "boom")
}

func TestLoad(t *testing.T) {
	origLoad, origNames := craneLoadFunc, GetNamesFromTarball
	defer func() { craneLoadFunc, GetNamesFromTarball = origLoad, origNames }()

	want := testImage(t, nil)
	craneLoadFunc = func(string, ...crane.Option) (v1.Image, error) { return want, nil }
	GetNamesFromTarball = func(string) ([]string, error) { return []string{"app:1", "app:latest"}, nil }

	img, err := Load("image.tar")
	require.NoError(t, err)
	assert.Equal(t, "app:1", img.Name)
	assert.Equal(t, "image.tar", img.File)
	assert.Equal(t, want, img.Image)

	craneLoadFunc = func(string, ...crane.Option) (v1.Image, error) { return nil, errors.New("corrupt") }
	_, err = Load("image.tar")
	assert.ErrorContains(t, err, "corrupt")
}

func TestPull(t *testing.T) {
	orig := cranePullFunc
	defer func() { cranePullFunc = orig }()

	want := testImage(t, nil)
	unauthorized := errors.New("UNAUTHORIZED: authentication required")

	tests := []struct {
		name    string
		auth    *authn.Basic
		results []error
		calls   int
		wantErr bool
	}{
		{name: "anonymous", results: []error{nil}, calls: 1},
		{name: "credentials", auth: &authn.Basic{Username: "u", Password: "p"}, results: []error{unauthorized, nil}, calls: 2},
		{name: "no credentials", results: []error{unauthorized}, calls: 1, wantErr: true},
		{name: "other error", auth: &authn.Basic{Username: "u", Password: "p"}, results: []error{errors.New("not found")}, calls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refs []string
			cranePullFunc = func(ref string, _ ...crane.Option) (v1.Image, error) {
				err := tt.results[len(refs)]
				refs = append(refs, ref)
				if err != nil {
					return nil, err
				}
				return want, nil
			}

			img, err := Pull(tt.auth, "alpine:3.20", "mirror.gcr.io")
			assert.Len(t, refs, tt.calls)
			assert.Equal(t, "mirror.gcr.io/library/alpine:3.20", refs[0])
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alpine:3.20", img.Name)
		})
	}
}

func TestSourceGet(t *testing.T) {
	origPull, origSave, origLoad, origDelay := Pull, craneSaveFunc, Load, RetryDelay
	defer func() { Pull, craneSaveFunc, Load, RetryDelay = origPull, origSave, origLoad, origDelay }()
	RetryDelay = 0

	want := testImage(t, nil)
	var loaded []string
	Load = func(path string) (*Image, error) {
		loaded = append(loaded, path)
		return &Image{Image: want, File: path}, nil
	}

	t.Run("local file", func(t *testing.T) {
		loaded = nil
		file := filepath.Join(t.TempDir(), "image.tar")
		require.NoError(t, os.WriteFile(file, nil, 0644))

		img, err := (&Source{Image: file}).Get()
		require.NoError(t, err)
		assert.Equal(t, file, img.File)
		assert.Equal(t, []string{file}, loaded)
	})

	t.Run("pull with retry and cache", func(t *testing.T) {
		loaded = nil
		cache := filepath.Join(t.TempDir(), "cache.tar")
		attempts := 0
		Pull = func(*authn.Basic, string, string) (*Image, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("timeout")
			}
			return &Image{Image: want, Name: "alpine"}, nil
		}
		craneSaveFunc = func(_ v1.Image, _, path string) error {
			return os.WriteFile(path, nil, 0644)
		}

		img, err := (&Source{Image: "alpine", Cache: cache, Retry: 1}).Get()
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, cache, img.File)
		assert.Equal(t, []string{cache}, loaded)

		// The cached tarball is reused
		attempts = 0
		_, err = (&Source{Image: "alpine", Cache: cache}).Get()
		require.NoError(t, err)
		assert.Equal(t, 0, attempts)
	})

	t.Run("pull without cache", func(t *testing.T) {
		loaded = nil
		Pull = func(*authn.Basic, string, string) (*Image, error) {
			return &Image{Image: want, Name: "alpine"}, nil
		}

		img, err := (&Source{Image: "alpine"}).Get()
		require.NoError(t, err)
		assert.Equal(t, "alpine", img.Name)
		assert.Empty(t, loaded)
	})
}

func TestWithMirror(t *testing.T) {
	assert.Equal(t, "alpine", withMirror("alpine", ""))
	assert.Equal(t, "mirror.gcr.io/library/alpine:3.20", withMirror("alpine:3.20", "mirror.gcr.io"))
	assert.Equal(t, "ghcr.io/org/app:1", withMirror("ghcr.io/org/app:1", "mirror.gcr.io"))
}

func TestIsUnauthorizedError(t *testing.T) {
	assert.False(t, isUnauthorizedError(nil))
	assert.True(t, isUnauthorizedError(errors.New("401 Unauthorized")))
	assert.False(t, isUnauthorizedError(errors.New("manifest unknown")))
}

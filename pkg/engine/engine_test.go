package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/profile"
	"github.com/kukaryambik/slimfs/pkg/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinary map[string][]string

func (f fakeBinary) Scan(p string) ([]string, error) {
	if v, ok := f[p]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s: %w", p, scanner.ErrTargetNotFound)
}

type fakePackages struct {
	owned    map[string][]string
	contents map[string][]string
	modes    []scanner.Autodeps
}

func (f *fakePackages) Scan(p string, mode scanner.Autodeps) ([]string, error) {
	f.modes = append(f.modes, mode)
	return f.owned[p], nil
}

func (f *fakePackages) Contents(name string) ([]string, error) {
	if v, ok := f.contents[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s: %w", name, scanner.ErrPackageNotFound)
}

type fakeReporter struct {
	keep, removed []string
	calls         int
}

func (f *fakeReporter) Report(keep, removed []string) error {
	f.calls++
	f.keep, f.removed = keep, removed
	return nil
}

func mkfile(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, p := range files {
		full := paths.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0644))
	}
}

func mklink(t *testing.T, root, target, p string) {
	t.Helper()
	full := paths.Join(root, p)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.Symlink(target, full))
}

// tree lists every entry under root as image paths.
func tree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		require.NoError(t, err)
		if path != root {
			out = append(out, "/"+strings.TrimPrefix(path, root+"/"))
		}
		return nil
	}))
	return out
}

type fixture struct {
	root     string
	bin      fakeBinary
	pkgs     *fakePackages
	reporter *fakeReporter
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	mkfile(t, root,
		"/usr/bin/foo",
		"/usr/lib/libbar.so",
		"/usr/share/man/foo.1.gz",
		"/tmp/cache/x",
		"/var/lib/dpkg/status",
	)
	return &fixture{
		root:     root,
		bin:      fakeBinary{"/usr/bin/foo": {"/usr/bin/foo", "/usr/lib/libbar.so"}},
		pkgs:     &fakePackages{},
		reporter: &fakeReporter{},
	}
}

func (f *fixture) processor(prof *profile.Profile) *Processor {
	return NewProcessor(f.root, prof).
		SetBinder(PrefixBinder{}).
		SetScanners(
			func(string) BinaryScanner { return f.bin },
			func(string) PackageScanner { return f.pkgs },
		).
		SetReporter(func(string) (Reporter, error) { return f.reporter, nil })
}

func fooProfile() *profile.Profile {
	return &profile.Profile{TargetList: []string{"/usr/bin/foo"}}
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)

	p := f.processor(fooProfile()).SetDryRun(false)
	require.NoError(t, p.Start())
	assert.Equal(t, StageDone, p.Stage())

	assert.Equal(t, []string{
		"/.slimfs.lock",
		"/usr",
		"/usr/bin",
		"/usr/bin/foo",
		"/usr/lib",
		"/usr/lib/libbar.so",
		"/var",
		"/var/lib",
		"/var/lib/dpkg",
		"/var/lib/dpkg/status",
	}, tree(t, f.root))
	assert.Equal(t, 0, f.reporter.calls)
}

func TestAlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor(fooProfile()).SetDryRun(false).Start())

	mkfile(t, f.root, "/opt/new")
	before := tree(t, f.root)
	p := f.processor(fooProfile()).SetDryRun(false)
	err := p.Start()

	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, StageFailed, p.Stage())
	assert.Equal(t, StageLockChecked, p.FailedAt())
	assert.Equal(t, before, tree(t, f.root))
}

func TestDryRunPurity(t *testing.T) {
	f := newFixture(t)
	before := tree(t, f.root)

	p := f.processor(fooProfile())
	require.NoError(t, p.Start())

	assert.Equal(t, before, tree(t, f.root))
	assert.NoFileExists(t, paths.Join(f.root, DefaultLockfile))
	assert.Equal(t, 1, f.reporter.calls)
	assert.Equal(t, []string{"/usr/bin/foo", "/usr/lib/libbar.so"}, f.reporter.keep)
	assert.Equal(t, []string{"/tmp/cache/x", "/usr/share/man/foo.1.gz"}, f.reporter.removed)
	assert.Equal(t, StageDone, p.Stage())
}

func TestOverridePrecedence(t *testing.T) {
	f := newFixture(t)
	mkfile(t, f.root, "/etc/both", "/etc/keep", "/usr/bin/prune")
	f.bin["/usr/bin/foo"] = append(f.bin["/usr/bin/foo"], "/usr/bin/prune")

	prof := fooProfile()
	prof.KeepList = []string{"/etc/both", "/etc/keep"}
	prof.PruneList = []string{"/etc/both", "/usr/bin/prune"}

	p := f.processor(prof)
	require.NoError(t, p.Start())

	keep, removed := p.Result()
	assert.Contains(t, keep, "/etc/keep")
	assert.NotContains(t, keep, "/etc/both")
	assert.NotContains(t, keep, "/usr/bin/prune")
	assert.Contains(t, removed, "/etc/both")
	assert.Contains(t, removed, "/usr/bin/prune")
}

func TestStaleKeepPath(t *testing.T) {
	f := newFixture(t)

	prof := fooProfile()
	prof.KeepList = []string{"/usr/bin/foo/stale", "/opt/missing/stale"}

	p := f.processor(prof)
	require.NoError(t, p.Start())
	assert.Equal(t, StageDone, p.Stage())
	assert.Equal(t, StageNotStarted, p.FailedAt())
}

func TestFiltersAndClosure(t *testing.T) {
	f := newFixture(t)
	mkfile(t, f.root, "/usr/lib/foo.real", "/usr/share/foo/data.tar.gz", "/usr/share/foo/logo.png", "/usr/share/doc/foo/README")
	mklink(t, f.root, "../lib/foo.real", "/usr/bin/foo-link")

	f.bin["/usr/bin/foo"] = append(f.bin["/usr/bin/foo"], "/usr/bin/foo-link")
	f.pkgs.owned = map[string][]string{"/usr/bin/foo": {
		"/usr/share/foo/data.tar.gz",
		"/usr/share/foo/logo.png",
		"/usr/share/doc/foo/README",
		"/usr/share/man/foo.1.gz",
	}}

	prof := fooProfile()
	prof.Filters = profile.Filters{Archives: true, Images: true, ManPages: true, DocDirs: true}

	p := f.processor(prof).SetAutodeps(scanner.Tight)
	require.NoError(t, p.Start())
	assert.Equal(t, []scanner.Autodeps{scanner.Tight}, f.pkgs.modes)

	keep, _ := p.Result()
	assert.Equal(t, []string{
		"/usr/bin/foo",
		"/usr/bin/foo-link",
		"/usr/lib/foo.real",
		"/usr/lib/libbar.so",
	}, keep)
}

func TestPackagesSeed(t *testing.T) {
	f := newFixture(t)
	mkfile(t, f.root, "/etc/ssl/certs/ca.pem")
	f.pkgs.contents = map[string][]string{"ca-certificates": {"/etc/ssl/certs/ca.pem"}}

	prof := &profile.Profile{PackageList: []string{"ca-certificates"}}
	p := f.processor(prof)
	require.NoError(t, p.Start())

	keep, _ := p.Result()
	assert.Equal(t, []string{"/etc/ssl/certs/ca.pem"}, keep)
}

func TestPartition(t *testing.T) {
	f := newFixture(t)
	mkfile(t, f.root, "/proc/1/status", "/etc/hosts")
	mklink(t, f.root, "usr/lib", "/lib")

	p := f.processor(fooProfile())
	require.NoError(t, p.Start())
	keep, removed := p.Result()
	kept, gone := paths.NewSet(keep...), paths.NewSet(removed...)

	for _, e := range tree(t, f.root) {
		if fi, err := os.Lstat(paths.Join(f.root, e)); err == nil && fi.IsDir() {
			continue
		}
		states := 0
		for _, in := range []bool{kept.Has(e), gone.Has(e), p.dissector.Protected(e)} {
			if in {
				states++
			}
		}
		assert.Equal(t, 1, states, e)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	mklink(t, f.root, "nowhere", "/usr/lib/dangling")
	mklink(t, f.root, "nowhere", "/var/lib/dpkg/dangling")
	mklink(t, f.root, "gone", "/usr/bin/kept-link")
	require.NoError(t, os.MkdirAll(paths.Join(f.root, "/var/empty"), 0755))
	require.NoError(t, os.MkdirAll(paths.Join(f.root, "/srv/a/b/c"), 0755))

	prof := fooProfile()
	prof.KeepList = []string{"/usr/bin/kept-link", "/var/empty"}

	require.NoError(t, f.processor(prof).SetDryRun(false).Start())

	assert.False(t, paths.FileExists(paths.Join(f.root, "/usr/lib/dangling")))
	assert.False(t, paths.FileExists(paths.Join(f.root, "/srv")))
	assert.True(t, paths.FileExists(paths.Join(f.root, "/var/lib/dpkg/dangling")))
	assert.True(t, paths.FileExists(paths.Join(f.root, "/usr/bin/kept-link")))
	assert.DirExists(t, paths.Join(f.root, "/var/empty"))
	assert.DirExists(t, f.root)
}

func TestBindFailure(t *testing.T) {
	f := newFixture(t)
	f.root = filepath.Join(f.root, "missing")

	p := f.processor(fooProfile())
	err := p.Start()
	assert.ErrorIs(t, err, ErrBindRoot)
	assert.Equal(t, StageRootBound, p.FailedAt())
}

func TestScannerFailure(t *testing.T) {
	f := newFixture(t)
	before := tree(t, f.root)

	prof := &profile.Profile{TargetList: []string{"/usr/bin/missing"}}
	p := f.processor(prof).SetDryRun(false)
	err := p.Start()

	assert.ErrorIs(t, err, scanner.ErrTargetNotFound)
	assert.Equal(t, StageSeeded, p.FailedAt())
	assert.Equal(t, before, tree(t, f.root))
}

func TestMarkerFailure(t *testing.T) {
	f := newFixture(t)

	p := f.processor(fooProfile()).SetDryRun(false).SetLockfile("/no/such/dir/lock")
	err := p.Start()

	assert.True(t, errors.Is(err, ErrMarker))
	assert.Equal(t, StageDone, p.FailedAt())
	// Deletions already happened
	assert.NoFileExists(t, paths.Join(f.root, "/tmp/cache/x"))
}

func TestStartOnce(t *testing.T) {
	f := newFixture(t)
	p := f.processor(fooProfile())
	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), ErrAlreadyStarted)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "symlink-closed", StageSymlinkClosed.String())
	assert.Equal(t, "unknown", Stage(99).String())
}

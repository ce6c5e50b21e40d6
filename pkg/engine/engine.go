// Package engine drives the trimming of an image root: it works out what to
// keep, what to remove, and then either reports or removes it.
package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/kukaryambik/slimfs/pkg/closure"
	"github.com/kukaryambik/slimfs/pkg/filters"
	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/report"
	"github.com/kukaryambik/slimfs/pkg/rootfs"
	"github.com/kukaryambik/slimfs/pkg/scanner"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
)

const DefaultLockfile = "/.slimfs.lock"

var (
	ErrAlreadyProcessed = errors.New("image root is already processed")
	ErrAlreadyStarted   = errors.New("processor already started")
	ErrBindRoot         = errors.New("cannot bind image root")
	ErrMarker           = errors.New("cannot create lockfile")
)

// Profile is what the processor reads from a loaded profile.
type Profile interface {
	Targets() []string
	Packages() []string
	KeepPaths() []string
	PrunePaths() []string
	RetainPaths() []string
	FilterArchives() bool
	FilterImages() bool
	TextOptions() filters.TextOptions
	DirOptions() filters.DirOptions
}

type BinaryScanner interface {
	Scan(path string) ([]string, error)
}

type PackageScanner interface {
	Scan(path string, mode scanner.Autodeps) ([]string, error)
	Contents(name string) ([]string, error)
}

type Dissector interface {
	Dissect(keep paths.Set) (paths.Set, error)
	Protected(p string) bool
}

type Reporter interface {
	Report(keep, removed []string) error
}

// Components are built once the root is bound, from the effective root.
type (
	BinaryScannerFunc  func(root string) BinaryScanner
	PackageScannerFunc func(root string) PackageScanner
	DissectorFunc      func(root string, retain []string) Dissector
	ReporterFunc       func(root string) (Reporter, error)
)

func defaultBinaryScanner(root string) BinaryScanner {
	return scanner.NewElfScanner(root)
}

func defaultPackageScanner(root string) PackageScanner {
	return scanner.NewDebScanner(root)
}

func defaultDissector(root string, retain []string) Dissector {
	return rootfs.NewDissector(root).KeepPackageDBs(true).KeepTemp(false).KeepTree(retain...)
}

func defaultReporter(root string) (Reporter, error) {
	return report.New(report.FormatText, root, os.Stdout, false)
}

// Processor runs the pipeline once over one image root.
type Processor struct {
	profile  Profile
	rootfs   string
	dryRun   bool
	autodeps scanner.Autodeps
	lockfile string
	binder   Binder

	newBinaryScanner  BinaryScannerFunc
	newPackageScanner PackageScannerFunc
	newDissector      DissectorFunc
	newReporter       ReporterFunc

	root      string
	binary    BinaryScanner
	packages  PackageScanner
	dissector Dissector

	stage    Stage
	failedAt Stage
	keep     paths.Set
	removed  paths.Set
}

// NewProcessor returns a processor for rootfs in dry-run mode with the chroot
// binder and the free autodeps mode.
func NewProcessor(rootfs string, prof Profile) *Processor {
	return &Processor{
		profile:           prof,
		rootfs:            util.Coalesce(rootfs, "/"),
		dryRun:            true,
		autodeps:          scanner.Free,
		lockfile:          DefaultLockfile,
		binder:            ChrootBinder{},
		newBinaryScanner:  defaultBinaryScanner,
		newPackageScanner: defaultPackageScanner,
		newDissector:      defaultDissector,
		newReporter:       defaultReporter,
		keep:              paths.NewSet(),
		removed:           paths.NewSet(),
	}
}

func (p *Processor) SetDryRun(v bool) *Processor {
	p.dryRun = v
	return p
}

func (p *Processor) SetAutodeps(mode scanner.Autodeps) *Processor {
	p.autodeps = mode
	return p
}

func (p *Processor) SetLockfile(path string) *Processor {
	p.lockfile = util.Coalesce(path, DefaultLockfile)
	return p
}

func (p *Processor) SetBinder(b Binder) *Processor {
	p.binder = b
	return p
}

func (p *Processor) SetScanners(bin BinaryScannerFunc, pkg PackageScannerFunc) *Processor {
	if bin != nil {
		p.newBinaryScanner = bin
	}
	if pkg != nil {
		p.newPackageScanner = pkg
	}
	return p
}

func (p *Processor) SetDissector(fn DissectorFunc) *Processor {
	if fn != nil {
		p.newDissector = fn
	}
	return p
}

func (p *Processor) SetReporter(fn ReporterFunc) *Processor {
	if fn != nil {
		p.newReporter = fn
	}
	return p
}

// Stage returns the last stage reached.
func (p *Processor) Stage() Stage { return p.stage }

// FailedAt returns the stage that failed, or StageNotStarted.
func (p *Processor) FailedAt() Stage { return p.failedAt }

// Result returns the sorted keep and removal sets.
func (p *Processor) Result() ([]string, []string) {
	return p.keep.Sorted(), p.removed.Sorted()
}

type step struct {
	stage Stage
	run   func() error
}

// Start runs the whole pipeline. It can be called once.
func (p *Processor) Start() error {
	if p.stage != StageNotStarted {
		return ErrAlreadyStarted
	}

	steps := []step{
		{StageRootBound, p.bind},
		{StageLockChecked, p.checkLock},
		{StageSeeded, p.seed},
		{StageTextFiltered, p.filterWith(filters.NewTextFilter(p.profile.TextOptions()))},
		{StageDirFiltered, p.filterWith(filters.NewDirFilter(p.profile.DirOptions()))},
		{StageOverridesApplied, p.applyOverrides},
		{StageSymlinkClosed, p.closeSymlinks},
		{StageResourceFiltered, p.filterResources},
		{StageDissected, p.dissect},
	}
	if p.dryRun {
		steps = append(steps, step{StageReported, p.present})
	} else {
		steps = append(steps, step{StageApplied, p.apply}, step{StageDone, p.mark})
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			p.failedAt = s.stage
			p.stage = StageFailed
			return fmt.Errorf("%s: %w", s.stage, err)
		}
		p.stage = s.stage
		logrus.Debugf("Stage %s: keeping %d, removing %d", s.stage, p.keep.Len(), p.removed.Len())
	}

	p.stage = StageDone
	return nil
}

func (p *Processor) bind() error {
	root, err := p.binder.Bind(p.rootfs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBindRoot, err)
	}
	p.root = root

	retain := append(append([]string{}, p.profile.RetainPaths()...), p.lockfile)
	p.binary = p.newBinaryScanner(root)
	p.packages = p.newPackageScanner(root)
	p.dissector = p.newDissector(root, retain)
	return nil
}

func (p *Processor) checkLock() error {
	if paths.FileExists(paths.Join(p.root, p.lockfile)) {
		return fmt.Errorf("%w: %s exists", ErrAlreadyProcessed, p.lockfile)
	}
	return nil
}

func (p *Processor) seed() error {
	for _, t := range p.profile.Targets() {
		bin, err := p.binary.Scan(t)
		if err != nil {
			return fmt.Errorf("error scanning %s: %w", t, err)
		}
		pkg, err := p.packages.Scan(t, p.autodeps)
		if err != nil {
			return fmt.Errorf("error finding package of %s: %w", t, err)
		}
		p.keep.Add(bin...)
		p.keep.Add(pkg...)
		p.keep.Add(t)
		logrus.Debugf("Target %s: %d files from binary, %d from package", t, len(bin), len(pkg))
	}

	for _, name := range p.profile.Packages() {
		files, err := p.packages.Contents(name)
		if err != nil {
			return fmt.Errorf("error listing package %s: %w", name, err)
		}
		p.keep.Add(files...)
		logrus.Debugf("Package %s: %d files", name, len(files))
	}
	return nil
}

func (p *Processor) filterWith(f filters.Filter) func() error {
	return func() error {
		return f.Filter(p.keep)
	}
}

// applyOverrides adds explicit keep paths and then drops prune paths, so a
// path in both lists ends up removed.
func (p *Processor) applyOverrides() error {
	p.keep.Add(p.profile.KeepPaths()...)
	p.keep.Remove(p.profile.PrunePaths()...)
	return nil
}

func (p *Processor) closeSymlinks() error {
	targets, err := closure.Symlinks(p.root, p.keep)
	if err != nil {
		return err
	}
	p.keep.Union(targets)
	return nil
}

func (p *Processor) filterResources() error {
	f := filters.NewResourceFilter(p.keep.Sorted(), p.profile.FilterArchives(), p.profile.FilterImages())
	return f.Filter(p.keep)
}

func (p *Processor) dissect() error {
	removed, err := p.dissector.Dissect(p.keep)
	if err != nil {
		return fmt.Errorf("error dissecting %s: %w", p.rootfs, err)
	}
	p.removed = removed
	return nil
}

func (p *Processor) present() error {
	r, err := p.newReporter(p.root)
	if err != nil {
		return err
	}
	keep, removed := p.Result()
	return r.Report(keep, removed)
}

// Package profile loads the declarative description of what an image keeps.
package profile

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kukaryambik/slimfs/pkg/filters"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var ErrInvalidProfile = errors.New("invalid profile")

// Filters holds the filter toggles of a profile.
type Filters struct {
	Archives    bool     `mapstructure:"archives"`
	Images      bool     `mapstructure:"images"`
	Docs        bool     `mapstructure:"docs"`
	ManPages    bool     `mapstructure:"manpages"`
	Info        bool     `mapstructure:"info"`
	Headers     bool     `mapstructure:"headers"`
	Logs        bool     `mapstructure:"logs"`
	Locales     bool     `mapstructure:"locales"`
	KeepLocales []string `mapstructure:"keep-locales"`
	DocDirs     bool     `mapstructure:"doc-dirs"`
	Dirs        []string `mapstructure:"dirs"`
}

// Profile is read-only once loaded.
type Profile struct {
	TargetList  []string `mapstructure:"targets"`
	PackageList []string `mapstructure:"packages"`
	KeepList    []string `mapstructure:"keep"`
	PruneList   []string `mapstructure:"prune"`
	RetainList  []string `mapstructure:"retain"`
	Filters     Filters  `mapstructure:"filters"`
}

// Load reads and merges the given profile files in order. YAML, TOML and JSON
// are accepted, chosen by file extension.
var Load = load

func load(files ...string) (*Profile, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no profile given", ErrInvalidProfile)
	}

	merged := &Profile{}
	for _, f := range files {
		p, err := read(f)
		if err != nil {
			return nil, err
		}
		merged.Merge(p)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	logrus.Debugf("Profile: %d targets, %d packages", len(merged.TargetList), len(merged.PackageList))
	return merged, nil
}

func read(file string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading profile %s: %w", file, err)
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("error parsing profile %s: %w", file, err)
	}
	logrus.Tracef("Profile %s: %+v", file, p)
	return &p, nil
}

// Merge appends the lists of other and ORs its toggles.
func (p *Profile) Merge(other *Profile) *Profile {
	p.TargetList = util.UniqString(append(p.TargetList, other.TargetList...))
	p.PackageList = util.UniqString(append(p.PackageList, other.PackageList...))
	p.KeepList = util.UniqString(append(p.KeepList, other.KeepList...))
	p.PruneList = util.UniqString(append(p.PruneList, other.PruneList...))
	p.RetainList = util.UniqString(append(p.RetainList, other.RetainList...))

	f, o := &p.Filters, other.Filters
	f.Archives = f.Archives || o.Archives
	f.Images = f.Images || o.Images
	f.Docs = f.Docs || o.Docs
	f.ManPages = f.ManPages || o.ManPages
	f.Info = f.Info || o.Info
	f.Headers = f.Headers || o.Headers
	f.Logs = f.Logs || o.Logs
	f.Locales = f.Locales || o.Locales
	f.DocDirs = f.DocDirs || o.DocDirs
	f.KeepLocales = util.UniqString(append(f.KeepLocales, o.KeepLocales...))
	f.Dirs = util.UniqString(append(f.Dirs, o.Dirs...))
	return p
}

// Validate checks that the profile names something to keep and that every
// path in it is absolute.
func (p *Profile) Validate() error {
	if len(p.TargetList) == 0 && len(p.PackageList) == 0 {
		return fmt.Errorf("%w: no targets or packages", ErrInvalidProfile)
	}

	for field, lst := range map[string][]string{
		"targets":      p.TargetList,
		"keep":         p.KeepList,
		"prune":        p.PruneList,
		"retain":       p.RetainList,
		"filters.dirs": p.Filters.Dirs,
	} {
		for _, v := range lst {
			if !filepath.IsAbs(v) {
				return fmt.Errorf("%w: %s: path %q is not absolute", ErrInvalidProfile, field, v)
			}
		}
	}
	return nil
}

func (p *Profile) Targets() []string     { return p.TargetList }
func (p *Profile) Packages() []string    { return p.PackageList }
func (p *Profile) KeepPaths() []string   { return p.KeepList }
func (p *Profile) PrunePaths() []string  { return p.PruneList }
func (p *Profile) RetainPaths() []string { return p.RetainList }
func (p *Profile) FilterArchives() bool  { return p.Filters.Archives }
func (p *Profile) FilterImages() bool    { return p.Filters.Images }

// TextOptions returns the toggles of the text filter.
func (p *Profile) TextOptions() filters.TextOptions {
	return filters.TextOptions{
		Docs:     p.Filters.Docs,
		ManPages: p.Filters.ManPages,
		Info:     p.Filters.Info,
		Headers:  p.Filters.Headers,
		Logs:     p.Filters.Logs,
	}
}

// DirOptions returns the toggles of the directory filter.
func (p *Profile) DirOptions() filters.DirOptions {
	return filters.DirOptions{
		Locales:     p.Filters.Locales,
		KeepLocales: p.Filters.KeepLocales,
		DocDirs:     p.Filters.DocDirs,
		Dirs:        p.Filters.Dirs,
	}
}

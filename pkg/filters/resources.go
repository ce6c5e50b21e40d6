package filters

import (
	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/sirupsen/logrus"
)

// ResourceFilter drops resources a program does not need to run: archives
// and pictures. It judges the candidates captured at construction.
type ResourceFilter struct {
	data          []string
	removeArchive bool
	removeImages  bool
}

func NewResourceFilter(data []string, removeArchives, removeImages bool) *ResourceFilter {
	if removeArchives {
		logrus.Debug("Removing archives")
	}
	if removeImages {
		logrus.Debug("Removing images, pictures, and vector graphics")
	}
	return &ResourceFilter{
		data:          data,
		removeArchive: removeArchives,
		removeImages:  removeImages,
	}
}

func (f *ResourceFilter) isArchive(name string) bool {
	return f.removeArchive && hasAnySuffix(name, ArchiveSuffixes)
}

func (f *ResourceFilter) isImage(name string) bool {
	return f.removeImages && hasAnySuffix(name, ImageSuffixes)
}

func (f *ResourceFilter) Filter(set paths.Set) error {
	out := make([]string, 0, len(f.data))
	for _, p := range f.data {
		name, err := fileName(p)
		if err != nil {
			return err
		}
		if f.isArchive(name) || f.isImage(name) {
			logrus.Tracef("Resource dropped: %s", p)
			continue
		}
		out = append(out, p)
	}

	set.Replace(out)
	return nil
}

package image

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/sirupsen/logrus"
)

// Image is a fetched container image.
type Image struct {
	Image v1.Image
	Name  string
	// File is the tarball the image was loaded from or saved to.
	File string
}

// GetNamesFromTarball returns the repository tags recorded in a docker tarball.
var GetNamesFromTarball = getNamesFromTarball

func getNamesFromTarball(path string) ([]string, error) {
	opener := func() (io.ReadCloser, error) {
		return os.Open(path)
	}

	manifest, err := tarball.LoadManifest(opener)
	if err != nil {
		return nil, fmt.Errorf("error loading manifest from %s: %w", path, err)
	}

	var tags []string
	for _, d := range manifest {
		tags = append(tags, d.RepoTags...)
	}
	if len(tags) == 0 {
		logrus.Debugf("No repository tags in %s", path)
	}
	return tags, nil
}

func isUnauthorizedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication required")
}

// withMirror moves Docker Hub references to the mirror registry. Other
// registries are left alone.
func withMirror(img, mirror string) string {
	if mirror == "" {
		return img
	}

	ref, err := name.ParseReference(img)
	if err != nil {
		logrus.Warnf("Error parsing image %s: %v", img, err)
		return img
	}
	if ref.Context().RegistryStr() != name.DefaultRegistry {
		return img
	}

	reg, err := name.NewRegistry(mirror)
	if err != nil {
		logrus.Warnf("Error parsing registry %s: %v", mirror, err)
		return img
	}

	repo := reg.Repo(ref.Context().RepositoryStr())
	switch ref.(type) {
	case name.Digest:
		return repo.Digest(ref.Identifier()).Name()
	case name.Tag:
		return repo.Tag(ref.Identifier()).Name()
	}
	return img
}

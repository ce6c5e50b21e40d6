// Package image fetches container images and unpacks them into a root that
// can be trimmed afterwards.
package image

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/kukaryambik/slimfs/pkg/paths"
	"github.com/kukaryambik/slimfs/pkg/util"
	"github.com/sirupsen/logrus"
)

// Source says where an image comes from.
type Source struct {
	// Image is a reference or the path of a docker tarball.
	Image string
	// Cache is an optional tarball a pulled image is saved to and reused from.
	Cache    string
	Mirror   string
	Username string
	Password string
	Retry    int
}

// RetryDelay is the base delay between pull attempts.
var RetryDelay = 5 * time.Second

var (
	craneLoadFunc = crane.Load
	cranePullFunc = crane.Pull
)

// Load loads the image from a tarball.
var Load = load

func load(path string) (*Image, error) {
	img, err := craneLoadFunc(path)
	if err != nil {
		return nil, fmt.Errorf("error loading image from tar file %s: %w", path, err)
	}

	names, err := GetNamesFromTarball(path)
	if err != nil {
		return nil, err
	}

	image := &Image{Image: img, File: path}
	if len(names) > 0 {
		image.Name = names[0]
	}
	return image, nil
}

// Pull pulls the image for the host platform, anonymously first and with the
// given credentials when the registry asks for them.
var Pull = pull

func pull(auth *authn.Basic, image, mirror string) (*Image, error) {
	logrus.Debugf("Pulling image: %s", image)

	platform := v1.Platform{
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
	}
	ref := withMirror(image, mirror)

	img, err := cranePullFunc(ref, crane.WithAuth(authn.Anonymous), crane.WithPlatform(&platform))
	if err == nil {
		return &Image{Image: img, Name: image}, nil
	}
	if !isUnauthorizedError(err) || auth == nil || auth.Username == "" || auth.Password == "" {
		return nil, fmt.Errorf("error pulling image %s: %w", image, err)
	}

	logrus.Debugf("Retrying pull of %s with credentials", image)
	basic := authn.FromConfig(authn.AuthConfig{
		Username: auth.Username,
		Password: auth.Password,
	})
	img, err = cranePullFunc(ref, crane.WithAuth(basic), crane.WithPlatform(&platform))
	if err != nil {
		return nil, fmt.Errorf("error pulling image %s with credentials: %w", image, err)
	}
	return &Image{Image: img, Name: image}, nil
}

// Get returns the image of the source: a local tarball is loaded, anything
// else is pulled with retries.
func (s *Source) Get() (*Image, error) {
	for _, f := range []string{s.Image, s.Cache} {
		if f != "" && paths.FileExists(f) {
			logrus.Infof("Using image file %s", f)
			return Load(f)
		}
	}

	auth := &authn.Basic{Username: s.Username, Password: s.Password}
	var img *Image
	err := util.Retry(s.Retry, RetryDelay, func() error {
		var err error
		img, err = Pull(auth, s.Image, s.Mirror)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.Cache == "" {
		return img, nil
	}
	if err := img.Save(s.Cache); err != nil {
		return nil, err
	}
	logrus.Infof("Image %s has been saved to %s", s.Image, s.Cache)
	return Load(s.Cache)
}

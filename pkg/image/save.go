package image

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/sirupsen/logrus"
)

var craneSaveFunc = crane.Save

// Save writes the image to a docker tarball at path.
func (img *Image) Save(path string) error {
	if err := craneSaveFunc(img.Image, img.Name, path); err != nil {
		return fmt.Errorf("error saving image to tar file %s: %w", path, err)
	}
	img.File = path
	logrus.Debugf("Image saved as tarball: %s", path)
	return nil
}

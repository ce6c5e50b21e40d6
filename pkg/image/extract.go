package image

import (
	"io"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/kukaryambik/slimfs/pkg/archiver"
	"github.com/sirupsen/logrus"
)

var craneExportFunc = crane.Export

// Extract flattens the image and unpacks it into rootfs, skipping the image
// paths in excl.
func Extract(img *Image, rootfs string, excl ...string) error {
	logrus.Infof("Extracting %s to %q", img.Name, rootfs)

	reader, writer := io.Pipe()
	go func() {
		writer.CloseWithError(craneExportFunc(img.Image, writer))
	}()
	defer reader.Close()

	return archiver.Untar(reader, rootfs, excl)
}

package cmd

import (
	"errors"
	"path/filepath"

	"github.com/kukaryambik/slimfs/pkg/image"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errExtractToHost = errors.New("refusing to extract an image over /")

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extract [flags] IMAGE",
		Aliases: []string{"ex", "unpack"},
		Short:   "Unpack an image into the image root",
		Example: "  " + AppName + " extract -R ./rootfs debian:bookworm-slim\n" +
			"  " + AppName + " extract -R ./rootfs ./image.tar",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.Image = args[0]
			opts.Cache = viper.GetString("cache")
			opts.RegistryMirror = viper.GetString("registry-mirror")
			opts.RegistryUsername = viper.GetString("registry-username")
			opts.RegistryPassword = viper.GetString("registry-password")
			opts.Retry = viper.GetInt("retry")
			_, err := opts.Extract()
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Cache, "cache", "", "Tarball the pulled image is saved to and reused from")
	cmd.MarkFlagFilename("cache", "tar")
	f.IntVar(&opts.Retry, "retry", 0, "Retry attempts of pulling the image; or use SLIMFS_RETRY")
	f.StringVar(&opts.RegistryMirror, "registry-mirror", "", "Registry mirror; or use SLIMFS_REGISTRY_MIRROR")
	f.StringVar(&opts.RegistryUsername, "registry-username", "",
		"Username for registry authentication; or use SLIMFS_REGISTRY_USERNAME")
	f.StringVar(&opts.RegistryPassword, "registry-password", "",
		"Password for registry authentication; or use SLIMFS_REGISTRY_PASSWORD")
	viper.BindPFlags(f)

	return cmd
}

// Extract fetches opts.Image and unpacks its flattened filesystem into
// opts.RootFS.
func (opts *CommandOptions) Extract() (*image.Image, error) {
	if filepath.Clean(opts.RootFS) == "/" {
		return nil, errExtractToHost
	}

	src := &image.Source{
		Image:    opts.Image,
		Cache:    opts.Cache,
		Mirror:   opts.RegistryMirror,
		Username: opts.RegistryUsername,
		Password: opts.RegistryPassword,
		Retry:    opts.Retry,
	}
	img, err := src.Get()
	if err != nil {
		return nil, err
	}

	if err := image.Extract(img, opts.RootFS, opts.systemPaths()...); err != nil {
		return nil, err
	}
	logrus.Infof("Image %s extracted to %s", opts.Image, opts.RootFS)
	return img, nil
}

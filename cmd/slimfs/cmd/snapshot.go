package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kukaryambik/slimfs/pkg/archiver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func defaultSnapshotFile() string {
	return AppName + "-snapshot-" + time.Now().Format("20060102150405") + ".tar"
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snap"},
		Short:   "Archive the image root before trimming it",
		Example: fmt.Sprintf("  %s snapshot -R ./rootfs -f rootfs.tar.zst", AppName),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.TarFile = viper.GetString("tar-file")
			return opts.Snapshot(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.TarFile, "tar-file", "f", "",
		"Archive to create, compressed for .gz, .zst and .xz; or use SLIMFS_TAR_FILE")
	cmd.MarkFlagFilename("tar-file", "tar", "gz", "tgz", "zst", "xz")
	viper.BindPFlag("tar-file", cmd.Flags().Lookup("tar-file"))

	return cmd
}

// Snapshot archives opts.RootFS without kernel filesystems and mounts, then
// prints the archive path to out.
func (opts *CommandOptions) Snapshot(ctx context.Context, out io.Writer) error {
	if opts.TarFile == "" {
		opts.TarFile = defaultSnapshotFile()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logrus.Infof("Creating snapshot of %s", opts.RootFS)
	if err := archiver.Tar(ctx, opts.RootFS, opts.TarFile, opts.systemPaths()); err != nil {
		return err
	}

	fmt.Fprintln(out, opts.TarFile)
	return nil
}

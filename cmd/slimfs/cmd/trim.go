package cmd

import (
	"io"

	"github.com/kukaryambik/slimfs/pkg/engine"
	"github.com/kukaryambik/slimfs/pkg/profile"
	"github.com/kukaryambik/slimfs/pkg/report"
	"github.com/kukaryambik/slimfs/pkg/scanner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func trimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trim",
		Short: "Work out what the profile needs and report or remove the rest",
		Example: "  " + AppName + " trim -R ./rootfs --confine prefix -p app.yaml\n" +
			"  " + AppName + " trim -p app.yaml --apply",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.Trim(cmd.OutOrStdout())
		},
	}
}

// Trim runs one pass of the engine over opts.RootFS. Reports go to out.
func (opts *CommandOptions) Trim(out io.Writer) error {
	prof, err := profile.Load(opts.Profiles...)
	if err != nil {
		return err
	}

	binder, err := opts.binder()
	if err != nil {
		return err
	}

	// Bad formats must fail before the root is bound
	format, showRemoved := opts.Report, opts.ShowRemoved
	if _, err := report.New(format, "/", io.Discard, showRemoved); err != nil {
		return err
	}

	mode := scanner.ParseAutodeps(opts.Autodeps)
	logrus.Debugf("Trimming %s: apply=%v autodeps=%s confine=%s", opts.RootFS, opts.Apply, mode, opts.Confine)

	p := engine.NewProcessor(opts.RootFS, prof).
		SetBinder(binder).
		SetAutodeps(mode).
		SetDryRun(!opts.Apply).
		SetLockfile(opts.Lockfile).
		SetReporter(func(root string) (engine.Reporter, error) {
			return report.New(format, root, out, showRemoved)
		})

	if err := p.Start(); err != nil {
		return err
	}

	if opts.Apply {
		keep, removed := p.Result()
		logrus.Infof("Kept %d paths, removed %d", len(keep), len(removed))
	}
	return nil
}

package cmd

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kukaryambik/slimfs/pkg/engine"
	"github.com/kukaryambik/slimfs/pkg/logging"
	"github.com/kukaryambik/slimfs/pkg/report"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const AppName = "slimfs"

type CommandOptions struct {
	RootFS      string
	Profiles    []string
	Apply       bool
	Autodeps    string
	Confine     string
	Report      string
	ShowRemoved bool
	Lockfile    string
	EnvFile     string

	TarFile string

	Image            string
	Cache            string
	RegistryMirror   string
	RegistryUsername string
	RegistryPassword string
	Retry            int
}

var (
	logLevel     string
	logFormat    string
	logTimestamp bool

	opts CommandOptions
)

// NewRootCmd builds the command tree. Every flag can also be set through a
// SLIMFS_ prefixed environment variable.
func NewRootCmd() *cobra.Command {
	viper.SetEnvPrefix(AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Strip an image root down to what its programs need",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.EnvFile = viper.GetString("env-file")
			if err := loadEnvFile(opts.EnvFile); err != nil {
				return err
			}

			opts.RootFS = viper.GetString("rootfs")
			opts.Profiles = viper.GetStringSlice("profile")
			opts.Apply = viper.GetBool("apply")
			opts.Autodeps = viper.GetString("autodeps")
			opts.Confine = viper.GetString("confine")
			opts.Report = viper.GetString("report")
			opts.ShowRemoved = viper.GetBool("show-removed")
			opts.Lockfile = viper.GetString("lockfile")
			logLevel = viper.GetString("verbosity")
			logFormat = viper.GetString("log-format")
			logTimestamp = viper.GetBool("log-timestamp")

			return logging.Configure(logLevel, logFormat, logTimestamp)
		},
	}

	addFlags(cmd)
	viper.BindPFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		trimCmd(),
		snapshotCmd(),
		extractCmd(),
	)
	return cmd
}

// loadEnvFile exports the variables of a dotenv file without overriding the
// ones already set. A missing default file is fine.
func loadEnvFile(file string) error {
	if file == "" {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) && file == defaultEnvFile {
			return nil
		}
		return err
	}
	logrus.Debugf("Environment loaded from %s", file)
	return nil
}

const defaultEnvFile = ".env"

func addFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.StringVarP(&opts.RootFS, "rootfs", "R", "/", "Image root directory; or use SLIMFS_ROOTFS")
	cmd.MarkPersistentFlagDirname("rootfs")

	f.StringSliceVarP(&opts.Profiles, "profile", "p", nil, "Profile file, repeatable (yaml, toml, json)")
	cmd.MarkPersistentFlagFilename("profile", "yaml", "yml", "toml", "json")

	f.BoolVar(&opts.Apply, "apply", false, "Remove files instead of reporting them")
	f.StringVar(&opts.Autodeps, "autodeps", "free", "Package dependency mode (undef, free, clean, tight)")
	f.StringVar(&opts.Confine, "confine", confineChroot, "Root confinement (chroot, prefix)")
	f.StringVar(&opts.Report, "report", report.FormatText, "Report format (text, json, yaml)")
	f.BoolVar(&opts.ShowRemoved, "show-removed", false, "List removed files in the report")
	f.StringVar(&opts.Lockfile, "lockfile", engine.DefaultLockfile, "Marker of a processed image root")

	f.StringVar(&opts.EnvFile, "env-file", defaultEnvFile, "Dotenv file with SLIMFS_ variables")
	cmd.MarkPersistentFlagFilename("env-file", "env")

	// Logging flags
	f.StringVarP(&logLevel, "verbosity", "v", logging.DefaultLevel,
		"Log level (trace, debug, info, warn, error, fatal, panic)")
	f.StringVar(&logFormat, "log-format", logging.FormatColor, "Log format (text, color, json)")
	f.BoolVar(&logTimestamp, "log-timestamp", logging.DefaultLogTimestamp, "Timestamp in log output")
}

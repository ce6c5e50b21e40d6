package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLevel        = "info"
	DefaultLogTimestamp = false

	FormatText  = "text"
	FormatColor = "color"
	FormatJSON  = "json"
)

// Configure sets level, formatter and timestamp display of the global logger.
func Configure(level, format string, timestamp bool) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case FormatText:
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !timestamp,
			FullTimestamp:    timestamp,
		})
	case FormatColor, "":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:      true,
			DisableTimestamp: !timestamp,
			FullTimestamp:    timestamp,
		})
	case FormatJSON:
		logrus.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !timestamp,
		})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	// Keep stdout free for reports
	logrus.SetOutput(os.Stderr)

	logrus.Debugf("Logging configured: level=%s format=%s timestamp=%v", lvl, format, timestamp)
	return nil
}

package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup - configure the process-wide logrus logger
func Setup(level string) {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("⚠️  Unknown LOG_LEVEL %q, falling back to info", level)
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// WithModule - entry tagged with the owning module name
func WithModule(name string) *logrus.Entry {
	return logrus.WithField("module", name)
}

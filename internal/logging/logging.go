// Package logging builds the run's logrus.Logger, the same shape as the
// teacher's dashLogger setup in cmd/bot/main.go: JSON formatting in live
// (non-dry-run) mode, full-timestamp text formatting otherwise, and a
// level string parsed with an info fallback plus a warning on a bad value.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger writing to stdout, formatted for dryRun vs
// live mode and leveled by levelName (falling back to Info on a bad or
// empty value).
func New(levelName string, dryRun bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if dryRun {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if levelName == "" {
		logger.SetLevel(logrus.InfoLevel)
		return logger
	}
	if lvl, err := logrus.ParseLevel(levelName); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.WithError(err).Warn("invalid log level; defaulting to info")
	}
	return logger
}

// WithRun returns an entry tagged with a correlation id for the whole run,
// so every log line emitted downstream can be grepped back to one
// invocation.
func WithRun(logger *logrus.Logger, runID string) *logrus.Entry {
	return logger.WithField("run_id", runID)
}

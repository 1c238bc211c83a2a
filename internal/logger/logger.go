// Package logger provides a wrapper around logrus for structured logging,
// plus the bounded ring buffer and per-domain log routing used by the
// scheduler and its dashboard consumers.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a new configured logger instance
func New(logLevel string) *logrus.Logger {
	log := logrus.New()

	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to info", logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if os.Getenv("ENVIRONMENT") == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	return log
}

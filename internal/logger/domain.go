package logger

import (
	"github.com/sirupsen/logrus"
)

// LogFunc is the callback threaded through tasks and the ingestion pipeline.
// The domain is bound at task entry, so work spawned from a task inherits the
// task's domain without carrying it explicitly.
type LogFunc func(level, message string)

// DomainLogger couples the process logger with the ring buffer and produces
// domain-bound LogFuncs for tasks.
type DomainLogger struct {
	log  *logrus.Logger
	ring *Ring
}

// NewDomainLogger wires a logrus logger to a ring buffer.
func NewDomainLogger(log *logrus.Logger, ring *Ring) *DomainLogger {
	return &DomainLogger{log: log, ring: ring}
}

// Ring exposes the underlying buffer for dashboard reads.
func (d *DomainLogger) Ring() *Ring {
	return d.ring
}

// Logger exposes the underlying logrus instance.
func (d *DomainLogger) Logger() *logrus.Logger {
	return d.log
}

// For returns a LogFunc bound to the given domain. Every line it emits is
// written to logrus with a domain field and appended to the ring buffer.
func (d *DomainLogger) For(domain string) LogFunc {
	entry := d.log.WithField("domain", domain)
	return func(level, message string) {
		switch level {
		case "debug":
			entry.Debug(message)
		case "warning", "warn":
			entry.Warn(message)
		case "error":
			entry.Error(message)
		default:
			entry.Info(message)
		}
		d.ring.Append(level, message, domain)
	}
}

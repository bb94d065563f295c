// Package klog provides structured logging for the kernel core. Every
// subsystem logs through here instead of fmt.Printf so that boot
// diagnostics, allocator stats, and fatal halts carry consistent
// component/op fields.
package klog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger scoped to one kernel component.
type Logger struct {
	entry *logrus.Entry
}

var base = newBase(os.Stdout)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	l.SetLevel(logrus.TraceLevel)
	return l
}

// SetOutput redirects all kernel logging to w. Used by tests that want
// to capture or silence boot noise.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// For returns a Logger scoped to the named component (e.g. "pmm",
// "vmm", "ext2").
func For(component string) Logger {
	return Logger{entry: base.WithField("component", component)}
}

// Infof logs an informational message for op.
func (l Logger) Infof(op, format string, args ...interface{}) {
	l.entry.WithField("op", op).Infof(format, args...)
}

// Warnf logs a warning for op.
func (l Logger) Warnf(op, format string, args ...interface{}) {
	l.entry.WithField("op", op).Warnf(format, args...)
}

// Errorf logs a recoverable error for op.
func (l Logger) Errorf(op string, err error) {
	l.entry.WithFields(logrus.Fields{"op": op, "err": err}).Error("operation failed")
}

// Fatal logs a kernel-fatal condition for op. It does not itself halt
// the CPU: callers (notably vmm.Manager.Fault) invoke a caller-supplied
// halt callback after logging, keeping "log" and "stop the world"
// independently testable.
func (l Logger) Fatal(op, msg string, fields map[string]interface{}) {
	e := l.entry.WithField("op", op)
	if fields != nil {
		e = e.WithFields(fields)
	}
	e.Error("FATAL: " + msg)
}

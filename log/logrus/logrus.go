// Package logrus adapts a logrus entry to stash.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/stash"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ stash.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f stash.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f stash.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f stash.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f stash.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

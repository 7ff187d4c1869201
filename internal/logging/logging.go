// Package logging provides the structured logger used across the fovis
// packages. It is a thin wrapper over zap, shaped after the Logger
// interface exposed by go.viam.com/rdk/logging (NewLogger/NewTestLogger
// plus the Debugf/Infof/Warnf/Errorf family) so the rest of the module can
// log without depending on zap types directly.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger is the logging surface used throughout fovis.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Named(name string) Logger
}

type impl struct {
	*zap.SugaredLogger
}

func (l *impl) Named(name string) Logger {
	return &impl{l.SugaredLogger.Named(name)}
}

// NewLogger returns a new logger that writes Info+ logs to stderr.
func NewLogger(name string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.Encoding = "console"
	base, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than panic on construction.
		return &impl{zap.NewNop().Sugar().Named(name)}
	}
	return &impl{base.Sugar().Named(name)}
}

// NewTestLogger returns a logger suitable for use inside Go tests.
func NewTestLogger(tb testing.TB) Logger {
	return &impl{zaptest.NewLogger(tb).Sugar()}
}

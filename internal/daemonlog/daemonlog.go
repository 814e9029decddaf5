// Package daemonlog sets up the daemon's structured logger. The rest
// of the daemon never imports zap directly: each subsystem that wants
// to log takes a plain `func(format string, args ...interface{})`
// callback (see rib.RIB.Log, kernelroute.Mock, etc.), and New's result
// is adapted to that shape with Printf, keeping zap a wiring-only
// dependency of cmd/olsrv2d.
package daemonlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Debug enables development-mode encoding (human-readable, caller
	// info, debug level) instead of the default JSON production encoder.
	Debug bool
}

// New builds a *zap.Logger per Options. Production mode uses JSON
// output at info level with ISO8601 timestamps, matching the
// ecosystem's usual non-interactive-service defaults.
func New(opts Options) (*zap.Logger, error) {
	if opts.Debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Printf adapts a *zap.SugaredLogger to the `func(format string,
// args ...interface{})` shape the protocol packages expect for their
// optional Log fields, logging at info level.
func Printf(s *zap.SugaredLogger) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		s.Infof(format, args...)
	}
}

package logger

import (
	"fmt"
	"log/slog"
)

// Printf adapts a structured logger to the printf-style interface used by
// embedded stores such as badger.
type Printf struct {
	logger *slog.Logger
}

// New returns a printf adapter tagged with component.
func New(logger *slog.Logger, component string) *Printf {
	if logger == nil {
		logger = slog.Default()
	}
	return &Printf{logger: logger.With("component", component)}
}

func (p *Printf) Errorf(format string, args ...any) {
	p.logger.Error(message(format, args...))
}

func (p *Printf) Warningf(format string, args ...any) {
	p.logger.Warn(message(format, args...))
}

// Infof logs at debug level; store housekeeping is too chatty for info.
func (p *Printf) Infof(format string, args ...any) {
	p.logger.Debug(message(format, args...))
}

func (p *Printf) Debugf(format string, args ...any) {
	p.logger.Debug(message(format, args...))
}

func message(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	return msg
}

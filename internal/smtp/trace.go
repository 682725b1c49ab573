package smtp

import (
	"log/slog"
)

const (
	traceOutbound = "==> "
	traceInbound  = "<== "
)

// Tracer receives every line exchanged with the server, prefixed with "==> "
// for lines sent and "<== " for lines received. It only observes.
type Tracer interface {
	Trace(line string)
}

// TracerFunc adapts a plain function to the Tracer interface.
type TracerFunc func(line string)

func (f TracerFunc) Trace(line string) {
	f(line)
}

// SlogTracer logs the protocol dialogue at debug level.
type SlogTracer struct {
	Logger *slog.Logger
}

func (t SlogTracer) Trace(line string) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug(line)
}

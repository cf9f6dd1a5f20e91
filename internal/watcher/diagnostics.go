package watcher

import "log/slog"

// Diagnostics receives buffer recovery reports from a Session.
type Diagnostics interface {
	// BufferGrown is reported after an overflow when the buffer could
	// still grow and the feed was re-established.
	BufferGrown(oldSize, newSize int, cause error)

	// BufferExhausted is reported when an overflow happens at the maximum
	// buffer size. The feed ends with a terminal fault afterwards.
	BufferExhausted(oldSize, newSize int, cause error)
}

type logDiagnostics struct {
	logger *slog.Logger
}

// NewLogDiagnostics reports buffer recovery through logger.
func NewLogDiagnostics(logger *slog.Logger) Diagnostics {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &logDiagnostics{logger: logger}
}

func (d *logDiagnostics) BufferGrown(oldSize, newSize int, cause error) {
	d.logger.Warn("notification buffer overflow, growing buffer",
		"old_size", oldSize,
		"new_size", newSize,
		"error", cause,
	)
}

func (d *logDiagnostics) BufferExhausted(oldSize, newSize int, cause error) {
	d.logger.Error("notification buffer overflow at maximum size",
		"old_size", oldSize,
		"new_size", newSize,
		"error", cause,
	)
}

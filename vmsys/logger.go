package vmsys

import (
	"io"
	"log/slog"
	"os"
)

// newLogger builds the structured logger for a System, tagging every
// record with a "component" key the way
// _examples/LucasIBorrat-GoSO/utils/logger.go tags its loggers with
// "modulo". Logging is centralized at the System facade rather than
// threaded into pmm/vmm/procvm/replace/fault: those packages stay
// policy-free and independently testable (their tests capture behavior
// through return values and the kfmt trace sink, not log records), while
// System logs boot, process creation and destruction, the result of each
// Vmalloc/Vfree that reaches the region list, and the teardown after a
// fatal fault. A page fault that resolves is not logged.
func newLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("component", "vmsys")
}

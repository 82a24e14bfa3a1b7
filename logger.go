package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/engine/driver/haldrv"
	"github.com/gogpu/engine/gpu"
	"github.com/gogpu/engine/render"
	"github.com/gogpu/engine/resource"
	"github.com/gogpu/engine/swapchain"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// subLoggers are the SetLogger functions of the packages the engine is
// built from.
var subLoggers = []func(*slog.Logger){
	gpu.SetLogger,
	swapchain.SetLogger,
	resource.SetLogger,
	render.SetLogger,
	haldrv.SetLogger,
}

// SetLogger configures the logger for the engine and all its sub-packages.
// By default, the engine produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by the engine:
//   - [slog.LevelDebug]: internal diagnostics (rejected adapters, per-frame state)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, chain rebuilt)
//   - [slog.LevelWarn]: non-fatal issues (stale chain, skipped rebuild)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	engine.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	engine.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range subLoggers {
		set(l)
	}
}

// Logger returns the current logger used by the engine.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// logutil.go - slog-Handler mit TRACE-Level
// Enthält: NewLogger, Trace, TraceContext

package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// LevelTrace is below debug; NANOCHAT_DEBUG=2 enables it.
const LevelTrace slog.Level = -8

// NewLogger returns a text logger that prints TRACE for LevelTrace and
// shortens source paths to the file name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

func Trace(msg string, args ...any) {
	log(context.TODO(), slog.Default(), LevelTrace, 3, msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.Default(), LevelTrace, 3, msg, args...)
}

// Log writes a record to logger with the caller of its caller as source.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, args ...any) {
	log(ctx, logger, level, 4, msg, args...)
}

func log(ctx context.Context, logger *slog.Logger, level slog.Level, skip int, msg string, args ...any) {
	if !logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}

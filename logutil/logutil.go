// Package logutil stellt den slog-Logger fuer graphrt bereit.
//
// Modul: logutil.go - Logger mit zusaetzlichem TRACE-Level
// Enthaelt: LevelTrace, NewLogger, Trace
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unterhalb von Debug und wird ueber GRAPHRT_DEBUG=2 aktiviert.
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger mit kurzem Source-Pfad und TRACE-Level.
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

// Trace loggt auf TRACE-Level ueber den Default-Logger.
func Trace(msg string, args ...any) {
	TraceContext(context.TODO(), msg, args...)
}

// TraceContext loggt auf TRACE-Level mit Context.
func TraceContext(ctx context.Context, msg string, args ...any) {
	slog.Log(ctx, LevelTrace, msg, args...)
}

package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
)

// prettyHandler is a slog.Handler that writes colorized, single-line
// records. errors attached via ErrAttr carry an xerrors stack trace
// which is printed indented under the record.
type prettyHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

var (
	defaultLogger *slog.Logger
	loggerOnce    sync.Once
)

// Logger returns the process-wide logger. The level is taken from
// LOG_LEVEL (debug, info, warn, error); colors go to stderr.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(GetEnv("LOG_LEVEL", "info")) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		defaultLogger = slog.New(&prettyHandler{
			mu:    &sync.Mutex{},
			out:   os.Stderr,
			level: level,
		})
	})
	return defaultLogger
}

// ErrAttr wraps err with a stack trace and returns it as a slog
// attribute named "error".
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", xerrors.New(err))
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	levelStr := r.Level.String()
	switch r.Level {
	case slog.LevelDebug:
		levelStr = color.HiBlackString(levelStr)
	case slog.LevelInfo:
		levelStr = color.CyanString(levelStr)
	case slog.LevelWarn:
		levelStr = color.YellowString(levelStr)
	case slog.LevelError:
		levelStr = color.RedString(levelStr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", r.Time.Format("15:04:05"), levelStr, r.Message)

	var traces []string
	appendAttr := func(a slog.Attr) {
		if err, ok := a.Value.Any().(error); ok {
			fmt.Fprintf(&b, " %s=%q", a.Key, err.Error())
			if trace := xerrors.StackTrace(err); len(trace) > 0 {
				frames := trace.Frames()
				for _, frame := range frames {
					traces = append(traces, fmt.Sprintf("\t%s (%s:%d)", frame.Function, frame.File, frame.Line))
				}
			}
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}

	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})

	b.WriteByte('\n')
	for _, line := range traces {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &prettyHandler{mu: h.mu, out: h.out, level: h.level, attrs: merged}
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	// groups are flattened; the scan pipeline doesn't nest attributes
	return h
}

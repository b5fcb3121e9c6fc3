package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/perfgo/e2erun/driver"
)

const (
	maxTraceFrames = 30
	// noConsoleEntries stands in for an empty browser log.
	noConsoleEntries = "(None)"
)

// Diagnostics is the evidence gathered when a test fails for good.
type Diagnostics struct {
	Trace string
	// Console holds the SEVERE browser log entries.
	Console []driver.LogEntry
	// ConsoleLog is Console rendered one "[LEVEL] message" per line, or
	// "(None)".
	ConsoleLog string
	Screenshot []byte
	CurrentURL string
	// Problems lists what could not be collected.
	Problems []string
}

// Collect gathers diagnostics for err from s. It never fails; s may be nil
// when the session could not be opened.
func Collect(ctx context.Context, s *Session, err error) Diagnostics {
	d := Diagnostics{
		Trace:      FormatTrace(err),
		ConsoleLog: noConsoleEntries,
	}
	if s == nil {
		d.Problems = append(d.Problems, "no browser session")
		return d
	}
	d.CurrentURL = s.BaseURL

	if u, err := s.CurrentURL(ctx); err != nil {
		d.Problems = append(d.Problems, fmt.Sprintf("current url: %v", err))
	} else if u != "" {
		d.CurrentURL = u
	}

	if entries, err := s.Logs(ctx, driver.LogBrowser); err != nil {
		d.Problems = append(d.Problems, fmt.Sprintf("browser log: %v", err))
	} else {
		for _, e := range entries {
			if strings.EqualFold(e.Level, driver.LevelSevere) {
				d.Console = append(d.Console, e)
			}
		}
	}
	d.ConsoleLog = renderConsole(d.Console)

	if shot, err := s.Screenshot(ctx); err != nil {
		d.Problems = append(d.Problems, fmt.Sprintf("screenshot: %v", err))
	} else {
		d.Screenshot = shot
	}
	return d
}

func renderConsole(entries []driver.LogEntry) string {
	if len(entries) == 0 {
		return noConsoleEntries
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Level, e.Message))
	}
	return strings.Join(lines, "\n")
}

// FormatTrace renders err, each error it wraps, and (for panics) the frames
// of the panicking goroutine, innermost first.
func FormatTrace(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(err.Error())

	var panicErr *PanicError
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(&b, "\ncaused by %T: %v", cause, cause)
	}

	if errors.As(err, &panicErr) && len(panicErr.Frames) > 0 {
		b.WriteString("\n\ngoroutine frames (innermost first):")
		frames := panicErr.Frames
		if len(frames) > maxTraceFrames {
			frames = frames[:maxTraceFrames]
		}
		for _, f := range frames {
			fmt.Fprintf(&b, "\n%s\n\t%s:%d", f.Function, f.File, f.Line)
		}
	}
	return b.String()
}

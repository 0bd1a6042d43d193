// Package debug provides category-based debug logging and logger setup for sense.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via SENSE_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via SENSE_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("dispatch", "processor selected", "kind", kind)
//	if debug.Enabled("storage") { /* expensive formatting */ }
//
// Categories: dispatch, storage, auth, transport, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full request and response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Initialize from environment for immediate availability.
	// Can be re-initialized later via Init() with config values.
	categories = parseCategories(os.Getenv("SENSE_DEBUG"))
}

// Init configures the debug system and installs the default logger.
// Environment overrides config. format is "text" or "json"; w defaults
// to stderr.
func Init(configCategories, configLevel, format string, w io.Writer) *slog.Logger {
	cats := os.Getenv("SENSE_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("SENSE_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	logger := slog.New(NewHandler(format, level, w))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the slog handler for the given output format.
// Text output goes through charmbracelet/log; anything else is JSON.
func NewHandler(format, level string, w io.Writer) slog.Handler {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "json") {
		return jsonHandler(level, w)
	}
	return textHandler(level, w)
}

func textHandler(level string, w io.Writer) slog.Handler {
	slogLevel := ParseLevel(level)
	return log.NewWithOptions(w, log.Options{
		Level:           log.Level(slogLevel),
		ReportTimestamp: slogLevel <= slog.LevelDebug,
		ReportCaller:    slogLevel <= LevelTrace,
	})
}

func jsonHandler(level string, w io.Writer) slog.Handler {
	slogLevel := ParseLevel(level)
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: slogLevel <= LevelTrace,
	})
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when SENSE_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text to stderr without any slog formatting.
// Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the list of enabled categories (for status reporting).
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCategories enables the given categories for the duration of the test.
func withCategories(t *testing.T, s string) {
	t.Helper()
	orig := categories
	t.Cleanup(func() { categories = orig })
	categories = parseCategories(s)
}

// withDefaultLogger restores the default slog logger after the test.
func withDefaultLogger(t *testing.T) {
	t.Helper()
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{name: "empty", input: "", want: map[string]bool{}},
		{name: "single", input: "dispatch", want: map[string]bool{"dispatch": true}},
		{name: "multiple", input: "dispatch,storage", want: map[string]bool{"dispatch": true, "storage": true}},
		{name: "all", input: "all", want: map[string]bool{"all": true}},
		{name: "spaces trimmed", input: " dispatch , storage ", want: map[string]bool{"dispatch": true, "storage": true}},
		{name: "case folded", input: "DISPATCH,Storage", want: map[string]bool{"dispatch": true, "storage": true}},
		{name: "empty segments", input: "dispatch,,storage", want: map[string]bool{"dispatch": true, "storage": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCategories(tt.input))
		})
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		categories string
		enabled    []string
		disabled   []string
	}{
		{categories: "dispatch,storage", enabled: []string{"dispatch", "storage"}, disabled: []string{"auth", "all"}},
		{categories: "all", enabled: []string{"dispatch", "storage", "transaction"}},
		{categories: "", disabled: []string{"dispatch", "all"}},
	}
	for _, tt := range tests {
		t.Run(tt.categories, func(t *testing.T) {
			withCategories(t, tt.categories)
			for _, c := range tt.enabled {
				assert.True(t, Enabled(c), c)
			}
			for _, c := range tt.disabled {
				assert.False(t, Enabled(c), c)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"TRACE":   LevelTrace,
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"":        slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(input), "level %q", input)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "<entry><t...", Truncate("<entry><title>first</title></entry>", 10))
}

func TestLogSkipsDisabledCategory(t *testing.T) {
	withCategories(t, "storage")
	withDefaultLogger(t)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(NewHandler("text", "trace", &buf)))

	Log("dispatch", "target resolved", "target", "entry")
	Trace("dispatch", "filter chain", "filters", 3)
	assert.Zero(t, buf.Len())
	assert.False(t, TraceIsEnabled("dispatch"))

	Trace("storage", "entry loaded", "id", "42")
	assert.Contains(t, buf.String(), "entry loaded")
	assert.True(t, TraceIsEnabled("storage"))
}

func TestNewHandlerText(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler("text", "info", &buf))

	logger.Debug("hidden message")
	logger.Info("entry stored", "collection", "notes")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "entry stored")
	assert.Contains(t, out, "collection")
	assert.Contains(t, out, "notes")
	assert.NotEqual(t, byte('{'), bytes.TrimSpace(buf.Bytes())[0], "text output is not JSON")
}

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler("JSON", "warn", &buf))

	logger.Info("hidden message")
	logger.Warn("hook failed", "hook", "end")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), "one JSON record: %q", buf.String())
	assert.Equal(t, "hook failed", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "end", record["hook"])
}

func TestNewHandlerTraceLevel(t *testing.T) {
	ctx := context.Background()
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			assert.True(t, NewHandler(format, "trace", &buf).Enabled(ctx, LevelTrace))
			assert.False(t, NewHandler(format, "debug", &buf).Enabled(ctx, LevelTrace))
		})
	}
}

func TestInit(t *testing.T) {
	withCategories(t, "")
	withDefaultLogger(t)
	t.Setenv("SENSE_DEBUG", "")
	t.Setenv("SENSE_LOG_LEVEL", "")

	var buf bytes.Buffer
	logger := Init("storage", "debug", "json", &buf)

	assert.Same(t, slog.Default(), logger)
	assert.ElementsMatch(t, []string{"storage"}, Categories())

	Log("storage", "journal rolled back", "entries", 2)
	assert.Contains(t, buf.String(), `"debug":"storage"`)
}

func TestInitEnvironmentOverridesConfig(t *testing.T) {
	withCategories(t, "")
	withDefaultLogger(t)
	t.Setenv("SENSE_DEBUG", "auth")
	t.Setenv("SENSE_LOG_LEVEL", "error")

	var buf bytes.Buffer
	Init("storage", "debug", "text", &buf)

	assert.ElementsMatch(t, []string{"auth"}, Categories())
	slog.Warn("suppressed")
	assert.Zero(t, buf.Len(), "warn is below the error level")
}

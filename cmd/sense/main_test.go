package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/config"
)

const entryXML = `<entry xmlns="http://www.w3.org/2005/Atom"><title>Hello</title><summary>first post</summary></entry>`

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := build(context.Background(), &cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	ts := httptest.NewServer(app.server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postEntry(t *testing.T, ts *httptest.Server, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/entries", strings.NewReader(entryXML))
	require.NoError(t, err)
	req.Header.Set("Content-Type", api.ContentTypeAtomEntry)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestBuildMemoryRoundTrip(t *testing.T) {
	ts := newTestServer(t, config.Defaults())

	resp := postEntry(t, ts, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, ts.URL+"/entries/"), "location %q", location)

	got, err := http.Get(location)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
	body, _ := io.ReadAll(got.Body)
	assert.Contains(t, string(body), "<title>Hello</title>")
	assert.Contains(t, string(body), "<name>"+"anonymous"+"</name>")

	feed, err := http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	defer feed.Body.Close()
	assert.Equal(t, http.StatusOK, feed.StatusCode)
	assert.Contains(t, feed.Header.Get("Content-Type"), "application/atom+xml")

	svc, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer svc.Body.Close()
	body, _ = io.ReadAll(svc.Body)
	assert.Equal(t, http.StatusOK, svc.StatusCode)
	assert.Contains(t, string(body), "Entries")
}

func TestBuildServesOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t, config.Defaults())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestBuildMetricsDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Observability.Metrics.Enabled = false
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildAPIKeyAuth(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{
		{Key: "sk-writer", Subject: "alice", Scopes: []string{"entries:write"}},
		{Key: "sk-reader", Subject: "bob"},
	}
	cfg.Workspaces[0].Collections[0].WriteScope = "entries:write"
	ts := newTestServer(t, cfg)

	t.Run("missing key", func(t *testing.T) {
		resp := postEntry(t, ts, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp := postEntry(t, ts, "sk-nope")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing scope", func(t *testing.T) {
		resp := postEntry(t, ts, "sk-reader")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("authorized", func(t *testing.T) {
		resp := postEntry(t, ts, "sk-writer")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "<name>alice</name>")
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestBuildRateLimit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.RateLimit.Enabled = true
	cfg.Auth.RateLimit.Default = config.BudgetConfig{Reads: 1, Writes: 1}
	ts := newTestServer(t, cfg)

	first, err := http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, postEntry(t, ts, "").StatusCode, "writes have their own budget")
	assert.Equal(t, http.StatusTooManyRequests, postEntry(t, ts, "").StatusCode)
}

func TestBuildBasePath(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.BasePath = "/atom"
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/atom/entries")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildRejectsUnknownStorage(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Type = "redis"

	_, err := build(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestProviderProperties(t *testing.T) {
	cfg := config.Defaults()
	cfg.Properties = map[string]string{"feed.author": "Sense"}

	app, err := build(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	v, ok := app.provider.Property("feed.author")
	assert.True(t, ok)
	assert.Equal(t, "Sense", v)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
workspaces:
  - title: Blog
    collections:
      - name: posts
      - name: photos
`), 0o600))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("storage:\n  type: redis\n"), 0o600))

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		require.NoError(t, app.Run(context.Background(), []string{"sense", "validate", "--config", valid}))
		assert.Contains(t, out.String(), "is valid")
		assert.Contains(t, out.String(), `Workspace "Blog": posts, photos`)
	})

	t.Run("positional argument", func(t *testing.T) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		require.NoError(t, app.Run(context.Background(), []string{"sense", "validate", valid}))
		assert.Contains(t, out.String(), valid)
	})

	t.Run("invalid", func(t *testing.T) {
		app := newApp()
		app.Writer = io.Discard
		err := app.Run(context.Background(), []string{"sense", "validate", "--config", invalid})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.type")
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run(context.Background(), []string{"sense", "version"}))
	assert.Equal(t, "sense version dev\n", out.String())
}

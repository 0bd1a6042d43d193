package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/auth"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/storage"
)

func init() {
	// Use a podman machine when Docker is not configured.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if sock := strings.TrimSpace(string(out)); err == nil && sock != "" {
			os.Setenv("DOCKER_HOST", "unix://"+sock)
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated DB.
// The test is skipped when no container runtime is available.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true")
	}
	if !hasContainerRuntime() {
		t.Skip("no docker or podman binary")
	}

	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("sense_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(ctx, Config{DSN: dsn, MaxConns: 5, MinConns: 1, MigrateOnStart: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func hasContainerRuntime() bool {
	for _, bin := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

func newRequest(t *testing.T) *api.Request {
	t.Helper()
	req, err := api.NewRequest(http.MethodPost, "/notes", nil)
	require.NoError(t, err)
	return req
}

func post(t *testing.T, c *Collection, ctx context.Context, req *api.Request, title string) *api.Entry {
	t.Helper()
	e, err := c.PostEntry(ctx, req, &api.Entry{Title: title})
	require.NoError(t, err, "posting %q", title)
	return e
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	got, ok := api.StatusOf(err)
	if assert.True(t, ok, "not a status error: %v", err) {
		assert.Equal(t, want, got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnLifetime)

	cfg = Config{MaxConns: 1}
	cfg.defaults()
	assert.Equal(t, int32(1), cfg.MinConns, "MinConns is capped at MaxConns")
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isDuplicateKey(&pgconn.PgError{Code: "23503"}), "foreign key violation")
	assert.False(t, isDuplicateKey(errors.New("23505")))
}

func TestPendingMigrations(t *testing.T) {
	got, err := pendingMigrations(migrationFiles)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].version, got[i-1].version, "migrations are ordered")
	}

	_, err = pendingMigrations(fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1")},
		"migrations/001_b.sql": {Data: []byte("SELECT 1")},
	})
	assert.Error(t, err, "duplicate versions")

	_, err = pendingMigrations(fstest.MapFS{"migrations/init.sql": {Data: []byte("SELECT 1")}})
	assert.Error(t, err, "missing version prefix")
}

func TestPostgres_PostAndGet(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("notes", WithTitle("Notes"))
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Subject: "alice"})

	created, err := c.PostEntry(ctx, newRequest(t), &api.Entry{
		Title:      "hello",
		Categories: []api.Category{{Term: "go"}},
		Content:    &api.Content{Type: "text", Body: "first note"},
	})
	require.NoError(t, err)
	assert.True(t, api.ValidateEntryID(api.EntryIDFromURN(created.ID)), created.ID)

	got, err := c.Entry(ctx, nil, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	require.NotNil(t, got.Content)
	assert.Equal(t, "first note", got.Content.Body)
	assert.Equal(t, []api.Person{{Name: "alice"}}, got.Authors)
	assert.Equal(t, []api.Category{{Term: "go"}}, got.Categories)
	assert.True(t, got.Updated.Equal(created.Updated), "updated %v, want %v", got.Updated, created.Updated)

	_, err = c.Entry(ctx, nil, api.NewEntryID())
	assertStatus(t, err, http.StatusNotFound)
}

func TestPostgres_FeedAndCollections(t *testing.T) {
	db := setupTestDB(t)
	notes := db.Collection("notes")
	ctx := context.Background()

	first := post(t, notes, ctx, newRequest(t), "first")
	time.Sleep(5 * time.Millisecond)
	second := post(t, notes, ctx, newRequest(t), "second")
	post(t, db.Collection("photos"), ctx, newRequest(t), "elsewhere")

	feed, err := notes.Feed(ctx, nil)
	require.NoError(t, err)
	require.Len(t, feed.Entries, 2, "entries of other collections are not listed")
	assert.Equal(t, second.ID, feed.Entries[0].ID, "newest first")
	assert.Equal(t, first.ID, feed.Entries[1].ID)
}

func TestPostgres_TenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("notes")
	ctxA := storage.WithTenant(context.Background(), "tenant-a")
	ctxB := storage.WithTenant(context.Background(), "tenant-b")

	e := post(t, c, ctxA, newRequest(t), "a")

	_, err := c.Entry(ctxB, nil, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	feed, err := c.Feed(ctxB, nil)
	require.NoError(t, err)
	assert.Empty(t, feed.Entries)
	assert.ErrorIs(t, c.DeleteEntry(ctxB, newRequest(t), e.ID), storage.ErrNotFound)

	_, err = c.Entry(context.Background(), nil, e.ID)
	assert.NoError(t, err, "an unscoped lookup sees every tenant")
}

func TestPostgres_PutAndDelete(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("notes")
	ctx := context.Background()

	e := post(t, c, ctx, newRequest(t), "draft")

	updated, err := c.PutEntry(ctx, newRequest(t), e.ID, &api.Entry{Title: "final", Summary: "done"})
	require.NoError(t, err)
	assert.Equal(t, e.ID, updated.ID)
	assert.True(t, updated.Published.Equal(e.Published))
	assert.Equal(t, "final", updated.Title)

	got, err := c.Entry(ctx, nil, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Summary)

	require.NoError(t, c.DeleteEntry(ctx, newRequest(t), e.ID))
	assertStatus(t, c.DeleteEntry(ctx, newRequest(t), e.ID), http.StatusNotFound)
}

func TestPostgres_Media(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("photos")
	ctx := context.Background()

	e, err := c.PostMedia(ctx, newRequest(t), "cat.png", &collection.Media{ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)
	assert.True(t, isMediaLink(e))
	assert.Equal(t, "cat.png", e.Title)

	m, err := c.Media(ctx, nil, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Len(t, m.Data, 4)

	require.NoError(t, c.PutMedia(ctx, newRequest(t), e.ID, &collection.Media{ContentType: "image/gif", Data: []byte("GIF")}))
	got, err := c.Entry(ctx, nil, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", got.Content.Type)

	plain := post(t, c, ctx, newRequest(t), "text")
	_, err = c.Media(ctx, nil, plain.ID)
	assert.ErrorIs(t, err, storage.ErrNoMedia)

	require.NoError(t, c.DeleteMedia(ctx, newRequest(t), e.ID))
	_, err = c.Entry(ctx, nil, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "the media link entry is gone")
}

func TestPostgres_Transaction(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("notes")
	ctx := context.Background()

	tests := []struct {
		name       string
		finish     func(req *api.Request) error
		wantStored bool
	}{
		{
			name:       "end with success commits",
			finish:     func(req *api.Request) error { return c.End(ctx, req, api.OK(nil)) },
			wantStored: true,
		},
		{
			name:   "end with error response rolls back",
			finish: func(req *api.Request) error { return c.End(ctx, req, api.BadRequest()) },
		},
		{
			name: "compensate rolls back",
			finish: func(req *api.Request) error {
				if err := c.Compensate(ctx, req, errors.New("boom")); err != nil {
					return err
				}
				return c.End(ctx, req, nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t)
			require.NoError(t, c.Start(ctx, req))
			e := post(t, c, ctx, req, tt.name)

			_, err := c.Entry(ctx, nil, e.ID)
			assert.ErrorIs(t, err, storage.ErrNotFound, "uncommitted entries are invisible outside the transaction")
			_, err = c.Entry(ctx, req, e.ID)
			assert.NoError(t, err, "visible inside its transaction")

			require.NoError(t, tt.finish(req))

			_, err = c.Entry(ctx, nil, e.ID)
			if tt.wantStored {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, storage.ErrNotFound)
			}
		})
	}
}

func TestPostgres_WriteScope(t *testing.T) {
	db := setupTestDB(t)
	c := db.Collection("notes", WithWriteScope("notes:write"))

	_, err := c.PostEntry(context.Background(), newRequest(t), &api.Entry{Title: "x"})
	assertStatus(t, err, http.StatusForbidden)
}

func TestPostgres_HealthCheck(t *testing.T) {
	assert.NoError(t, setupTestDB(t).HealthCheck(context.Background()))
}

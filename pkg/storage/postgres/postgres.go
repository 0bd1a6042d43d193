// Package postgres provides a PostgreSQL collection adapter. It uses
// pgx/v5 for connection pooling and JSONB for structured entry fields.
//
// A [DB] owns the connection pool and schema; each served collection is a
// [Collection] on top of it. Collections are transactional: Start begins a
// pgx transaction stored on the request, every operation of that request
// runs inside it, and End commits it unless the request failed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/auth"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/debug"
	"github.com/rhuss/sense/pkg/storage"
	"github.com/rhuss/sense/pkg/transaction"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a PostgreSQL connection pool holding the entry and media tables.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to PostgreSQL with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &DB{pool: pool, logger: logger}

	if cfg.MigrateOnStart {
		if err := db.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return db, nil
}

// HealthCheck verifies database connectivity.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Collection is a PostgreSQL-backed collection adapter.
type Collection struct {
	db         *DB
	name       string
	title      string
	writeScope string
	categories *api.Categories
}

// Ensure Collection implements the collection capabilities at compile time.
var (
	_ collection.MediaAdapter      = (*Collection)(nil)
	_ collection.CategoriesAdapter = (*Collection)(nil)
	_ transaction.Transactional    = (*Collection)(nil)
)

// Option configures a Collection.
type Option func(*Collection)

// WithTitle sets the feed title. Defaults to the collection name.
func WithTitle(title string) Option {
	return func(c *Collection) {
		if title != "" {
			c.title = title
		}
	}
}

// WithWriteScope requires callers to hold scope for every mutation.
func WithWriteScope(scope string) Option {
	return func(c *Collection) {
		c.writeScope = scope
	}
}

// WithCategories sets the category document of the collection.
func WithCategories(cats *api.Categories) Option {
	return func(c *Collection) {
		c.categories = cats
	}
}

// Collection returns the adapter for the named collection.
func (db *DB) Collection(name string, opts ...Option) *Collection {
	c := &Collection{db: db, name: name, title: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

const entryColumns = "id, title, summary, authors, categories, links, content, published, updated"

// Feed returns the entries visible to the caller's tenant, most recently
// updated first.
func (c *Collection) Feed(ctx context.Context, req *api.Request) (*api.Feed, error) {
	rows, err := c.q(req).Query(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE collection = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY updated DESC, published DESC, id
	`, c.name, storage.TenantFromContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	feed := &api.Feed{
		ID:      "urn:sense:collection:" + c.name,
		Title:   c.title,
		Updated: now(),
		Entries: []*api.Entry{},
	}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		feed.Entries = append(feed.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	if len(feed.Entries) > 0 {
		feed.Updated = feed.Entries[0].Updated
	}
	return feed, nil
}

// Entry returns a single entry.
func (c *Collection) Entry(ctx context.Context, req *api.Request, id string) (*api.Entry, error) {
	e, err := c.lookup(ctx, c.q(req), id)
	if err != nil {
		return nil, storage.StatusError(err)
	}
	return e, nil
}

// PostEntry stores a new entry with a generated ID.
func (c *Collection) PostEntry(ctx context.Context, req *api.Request, entry *api.Entry) (*api.Entry, error) {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Title) == "" {
		return nil, api.NewBadRequestError("entry title is required")
	}

	stored := *entry
	stored.ID = api.EntryURN(api.NewEntryID())
	stored.Published = now()
	stored.Updated = stored.Published
	stored.Links = stripEditLinks(entry.Links)
	if entry.Content != nil {
		content := *entry.Content
		content.Src = ""
		stored.Content = &content
	}
	if len(stored.Authors) == 0 {
		stored.Authors = []api.Person{{Name: auth.SubjectFromContext(ctx)}}
	}

	if err := c.insert(ctx, c.q(req), &stored); err != nil {
		return nil, storage.StatusError(err)
	}
	return &stored, nil
}

// PutEntry replaces the metadata of an entry. The content of a media link
// entry is kept.
func (c *Collection) PutEntry(ctx context.Context, req *api.Request, id string, entry *api.Entry) (*api.Entry, error) {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Title) == "" {
		return nil, api.NewBadRequestError("entry title is required")
	}

	var updated api.Entry
	err := pgx.BeginFunc(ctx, c.q(req), func(tx pgx.Tx) error {
		prev, err := c.lookup(ctx, tx, id)
		if err != nil {
			return err
		}

		updated = *entry
		updated.ID = prev.ID
		updated.Published = prev.Published
		updated.Updated = now()
		updated.Links = stripEditLinks(entry.Links)
		switch {
		case isMediaLink(prev):
			updated.Content = prev.Content
		case entry.Content != nil:
			content := *entry.Content
			content.Src = ""
			updated.Content = &content
		}
		if len(updated.Authors) == 0 {
			updated.Authors = prev.Authors
		}
		return c.update(ctx, tx, &updated)
	})
	if err != nil {
		return nil, storage.StatusError(err)
	}
	return &updated, nil
}

// DeleteEntry removes an entry and its media resource.
func (c *Collection) DeleteEntry(ctx context.Context, req *api.Request, id string) error {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return err
	}
	return storage.StatusError(c.delete(ctx, c.q(req), id))
}

// PostMedia stores a media resource together with its media link entry.
// The slug becomes the entry title.
func (c *Collection) PostMedia(ctx context.Context, req *api.Request, slug string, media *collection.Media) (*api.Entry, error) {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return nil, err
	}

	id := api.NewEntryID()
	title := strings.TrimSpace(slug)
	if title == "" {
		title = id
	}
	ts := now()
	entry := &api.Entry{
		ID:        api.EntryURN(id),
		Title:     title,
		Authors:   []api.Person{{Name: auth.SubjectFromContext(ctx)}},
		Content:   &api.Content{Type: media.ContentType, Src: id},
		Published: ts,
		Updated:   ts,
	}

	err := pgx.BeginFunc(ctx, c.q(req), func(tx pgx.Tx) error {
		if err := c.insert(ctx, tx, entry); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO media (collection, id, content_type, data) VALUES ($1, $2, $3, $4)",
			c.name, id, media.ContentType, media.Data,
		)
		if err != nil {
			return fmt.Errorf("inserting media: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storage.StatusError(err)
	}
	return entry, nil
}

// Media returns the media resource of an entry.
func (c *Collection) Media(ctx context.Context, req *api.Request, id string) (*collection.Media, error) {
	q := c.q(req)
	if _, err := c.lookup(ctx, q, id); err != nil {
		return nil, storage.StatusError(err)
	}

	var m collection.Media
	err := q.QueryRow(ctx,
		"SELECT content_type, data FROM media WHERE collection = $1 AND id = $2",
		c.name, api.EntryIDFromURN(id),
	).Scan(&m.ContentType, &m.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.StatusError(storage.ErrNoMedia)
	}
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}
	return &m, nil
}

// PutMedia replaces the media resource of an entry.
func (c *Collection) PutMedia(ctx context.Context, req *api.Request, id string, media *collection.Media) error {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, c.q(req), func(tx pgx.Tx) error {
		e, err := c.lookup(ctx, tx, id)
		if err != nil {
			return err
		}
		if !isMediaLink(e) {
			return storage.ErrNoMedia
		}
		tag, err := tx.Exec(ctx,
			"UPDATE media SET content_type = $3, data = $4 WHERE collection = $1 AND id = $2",
			c.name, api.EntryIDFromURN(id), media.ContentType, media.Data,
		)
		if err != nil {
			return fmt.Errorf("updating media: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNoMedia
		}
		e.Content.Type = media.ContentType
		e.Updated = now()
		return c.update(ctx, tx, e)
	})
	return storage.StatusError(err)
}

// DeleteMedia removes a media resource and its media link entry.
func (c *Collection) DeleteMedia(ctx context.Context, req *api.Request, id string) error {
	if err := auth.Authorize(ctx, c.writeScope); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, c.q(req), func(tx pgx.Tx) error {
		e, err := c.lookup(ctx, tx, id)
		if err != nil {
			return err
		}
		if !isMediaLink(e) {
			return storage.ErrNoMedia
		}
		return c.delete(ctx, tx, id)
	})
	return storage.StatusError(err)
}

// Categories returns the configured category document, or an empty one.
func (c *Collection) Categories(_ context.Context, _ *api.Request) (*api.Categories, error) {
	if c.categories == nil {
		return &api.Categories{}, nil
	}
	out := *c.categories
	out.Categories = slices.Clone(c.categories.Categories)
	return &out, nil
}

// ExtensionRequest declines every request.
func (c *Collection) ExtensionRequest(_ context.Context, _ *api.Request) (*api.Response, error) {
	return nil, nil
}

// Start begins the transaction of req.
func (c *Collection) Start(ctx context.Context, req *api.Request) error {
	tx, err := c.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	req.SetAttribute(c.txKey(), tx)
	return nil
}

// Compensate rolls back the transaction of req.
func (c *Collection) Compensate(ctx context.Context, req *api.Request, _ error) error {
	tx := c.takeTx(req)
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}

// End commits the transaction of req. It rolls back instead when the
// request produced no response or an error response.
func (c *Collection) End(ctx context.Context, req *api.Request, resp *api.Response) error {
	tx := c.takeTx(req)
	if tx == nil {
		return nil
	}
	if resp == nil || resp.Status >= 400 {
		debug.Log("storage", "rolling back request transaction", "collection", c.name)
		if err := tx.Rollback(ctx); err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (c *Collection) txKey() string {
	return "postgres.tx." + c.name
}

// takeTx detaches the open transaction from req.
func (c *Collection) takeTx(req *api.Request) pgx.Tx {
	tx, _ := req.Attribute(c.txKey()).(pgx.Tx)
	req.SetAttribute(c.txKey(), nil)
	return tx
}

// q returns the request transaction, or the pool outside of one.
func (c *Collection) q(req *api.Request) querier {
	if req != nil {
		if tx, ok := req.Attribute(c.txKey()).(pgx.Tx); ok {
			return tx
		}
	}
	return c.db.pool
}

func (c *Collection) lookup(ctx context.Context, q querier, id string) (*api.Entry, error) {
	row := q.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE collection = $1 AND id = $2 AND ($3 = '' OR tenant_id = $3)
	`, c.name, api.EntryIDFromURN(id), storage.TenantFromContext(ctx))
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return e, err
}

func (c *Collection) insert(ctx context.Context, q querier, e *api.Entry) error {
	cols, err := marshalEntry(e)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO entries (
			collection, id, tenant_id, title, summary,
			authors, categories, links, content, published, updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.name, api.EntryIDFromURN(e.ID), storage.TenantFromContext(ctx), e.Title, e.Summary,
		cols.authors, cols.categories, cols.links, cols.content, e.Published, e.Updated,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func (c *Collection) update(ctx context.Context, q querier, e *api.Entry) error {
	cols, err := marshalEntry(e)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE entries SET
			title = $3, summary = $4, authors = $5, categories = $6,
			links = $7, content = $8, updated = $9
		WHERE collection = $1 AND id = $2
	`,
		c.name, api.EntryIDFromURN(e.ID), e.Title, e.Summary,
		cols.authors, cols.categories, cols.links, cols.content, e.Updated,
	)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *Collection) delete(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx,
		"DELETE FROM entries WHERE collection = $1 AND id = $2 AND ($3 = '' OR tenant_id = $3)",
		c.name, api.EntryIDFromURN(id), storage.TenantFromContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// entryColumnsJSON holds the JSONB-encoded columns of an entry.
type entryColumnsJSON struct {
	authors, categories, links []byte
	content                    *[]byte
}

func marshalEntry(e *api.Entry) (entryColumnsJSON, error) {
	var cols entryColumnsJSON
	var err error
	if cols.authors, err = marshalList(e.Authors); err != nil {
		return cols, fmt.Errorf("marshaling authors: %w", err)
	}
	if cols.categories, err = marshalList(e.Categories); err != nil {
		return cols, fmt.Errorf("marshaling categories: %w", err)
	}
	if cols.links, err = marshalList(e.Links); err != nil {
		return cols, fmt.Errorf("marshaling links: %w", err)
	}
	if e.Content != nil {
		b, err := json.Marshal(e.Content)
		if err != nil {
			return cols, fmt.Errorf("marshaling content: %w", err)
		}
		cols.content = &b
	}
	return cols, nil
}

// marshalList encodes a slice as a JSON array, never null.
func marshalList[T any](list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}
	return json.Marshal(list)
}

func scanEntry(row pgx.Row) (*api.Entry, error) {
	var (
		e                          api.Entry
		id                         string
		authors, categories, links []byte
		content                    []byte
	)
	err := row.Scan(&id, &e.Title, &e.Summary, &authors, &categories, &links, &content, &e.Published, &e.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	e.ID = api.EntryURN(id)
	e.Published = e.Published.UTC()
	e.Updated = e.Updated.UTC()
	if err := json.Unmarshal(authors, &e.Authors); err != nil {
		return nil, fmt.Errorf("unmarshaling authors: %w", err)
	}
	if err := json.Unmarshal(categories, &e.Categories); err != nil {
		return nil, fmt.Errorf("unmarshaling categories: %w", err)
	}
	if err := json.Unmarshal(links, &e.Links); err != nil {
		return nil, fmt.Errorf("unmarshaling links: %w", err)
	}
	if content != nil {
		e.Content = &api.Content{}
		if err := json.Unmarshal(content, e.Content); err != nil {
			return nil, fmt.Errorf("unmarshaling content: %w", err)
		}
	}
	return &e, nil
}

// now returns the current time at database precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func isMediaLink(e *api.Entry) bool {
	return e.Content != nil && e.Content.Src != ""
}

func stripEditLinks(links []api.Link) []api.Link {
	out := make([]api.Link, 0, len(links))
	for _, l := range links {
		if l.Rel != api.RelEdit && l.Rel != api.RelEditMedia {
			out = append(out, l)
		}
	}
	return out
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

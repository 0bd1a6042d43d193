// Package memory provides an in-memory collection adapter for testing and
// lightweight deployments. Entries are stored in memory and lost when the
// process restarts. Optional LRU eviction limits memory usage.
//
// The store is transactional. Start opens an undo journal on the request,
// every mutation records how to revert itself, and Compensate replays the
// journal in reverse. Journals do not isolate concurrent requests from
// each other.
package memory

import (
	"container/list"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/auth"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/debug"
	"github.com/rhuss/sense/pkg/storage"
	"github.com/rhuss/sense/pkg/transaction"
)

// record holds a stored entry and its metadata.
type record struct {
	entry    *api.Entry
	media    *collection.Media
	tenantID string
	seq      uint64
	lruElem  *list.Element // position in LRU list
}

// journal collects the undo steps of one request. Steps run with the
// store lock held.
type journal struct {
	undo []func()
}

// Store is an in-memory collection with optional LRU eviction.
type Store struct {
	name       string
	title      string
	writeScope string
	categories *api.Categories
	now        func() time.Time

	mu      sync.RWMutex
	records map[string]*record
	lruList *list.List // front = newest, back = oldest
	maxSize int        // 0 = unlimited
	seq     uint64
}

// Ensure Store implements the collection capabilities at compile time.
var (
	_ collection.MediaAdapter      = (*Store)(nil)
	_ collection.CategoriesAdapter = (*Store)(nil)
	_ transaction.Transactional    = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithTitle sets the feed title. Defaults to the collection name.
func WithTitle(title string) Option {
	return func(s *Store) {
		if title != "" {
			s.title = title
		}
	}
}

// WithMaxSize limits the number of stored entries. When the limit is
// reached the oldest entry is evicted. 0 means unlimited.
func WithMaxSize(n int) Option {
	return func(s *Store) {
		s.maxSize = n
	}
}

// WithWriteScope requires callers to hold scope for every mutation.
func WithWriteScope(scope string) Option {
	return func(s *Store) {
		s.writeScope = scope
	}
}

// WithCategories sets the category document of the collection.
func WithCategories(c *api.Categories) Option {
	return func(s *Store) {
		s.categories = c
	}
}

// New creates an empty store serving the collection name.
func New(name string, opts ...Option) *Store {
	s := &Store{
		name:    name,
		title:   name,
		now:     time.Now,
		records: make(map[string]*record),
		lruList: list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the collection name.
func (s *Store) Name() string {
	return s.name
}

// Len returns the number of stored entries across all tenants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Feed returns the entries visible to the caller's tenant, most recently
// updated first.
func (s *Store) Feed(ctx context.Context, _ *api.Request) (*api.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		if storage.Visible(ctx, r.tenantID) {
			matches = append(matches, r)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].entry.Updated, matches[j].entry.Updated
		if !a.Equal(b) {
			return a.After(b)
		}
		return matches[i].seq > matches[j].seq
	})

	feed := &api.Feed{
		ID:      "urn:sense:collection:" + s.name,
		Title:   s.title,
		Updated: s.now().UTC(),
		Entries: make([]*api.Entry, 0, len(matches)),
	}
	if len(matches) > 0 {
		feed.Updated = matches[0].entry.Updated
	}
	for _, r := range matches {
		feed.Entries = append(feed.Entries, cloneEntry(r.entry))
	}
	return feed, nil
}

// Entry returns a single entry.
func (s *Store) Entry(ctx context.Context, _ *api.Request, id string) (*api.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, storage.StatusError(err)
	}
	return cloneEntry(r.entry), nil
}

// PostEntry stores a new entry with a generated ID.
func (s *Store) PostEntry(ctx context.Context, req *api.Request, entry *api.Entry) (*api.Entry, error) {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Title) == "" {
		return nil, api.NewBadRequestError("entry title is required")
	}

	id := api.NewEntryID()
	now := s.now().UTC()
	stored := cloneEntry(entry)
	stored.ID = api.EntryURN(id)
	stored.Published, stored.Updated = now, now
	stored.Links = stripEditLinks(stored.Links)
	if stored.Content != nil {
		stored.Content.Src = ""
	}
	if len(stored.Authors) == 0 {
		stored.Authors = []api.Person{{Name: auth.SubjectFromContext(ctx)}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insert(req, id, &record{entry: stored, tenantID: storage.TenantFromContext(ctx)}); err != nil {
		return nil, storage.StatusError(err)
	}
	return cloneEntry(stored), nil
}

// PutEntry replaces the metadata of an entry. The media resource of a
// media link entry is kept.
func (s *Store) PutEntry(ctx context.Context, req *api.Request, id string, entry *api.Entry) (*api.Entry, error) {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Title) == "" {
		return nil, api.NewBadRequestError("entry title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, storage.StatusError(err)
	}

	prev := r.entry
	updated := cloneEntry(entry)
	updated.ID = prev.ID
	updated.Published = prev.Published
	updated.Updated = s.now().UTC()
	updated.Links = stripEditLinks(updated.Links)
	switch {
	case r.media != nil:
		updated.Content = cloneContent(prev.Content)
	case updated.Content != nil:
		updated.Content.Src = ""
	}
	if len(updated.Authors) == 0 {
		updated.Authors = slices.Clone(prev.Authors)
	}

	r.entry = updated
	s.logUndo(req, func() { r.entry = prev })
	return cloneEntry(updated), nil
}

// DeleteEntry removes an entry and its media resource.
func (s *Store) DeleteEntry(ctx context.Context, req *api.Request, id string) error {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(ctx, id)
	if err != nil {
		return storage.StatusError(err)
	}
	key := api.EntryIDFromURN(id)
	s.remove(key)
	s.logUndo(req, func() { s.restore(key, r) })
	return nil
}

// PostMedia stores a media resource together with its media link entry.
// The slug becomes the entry title.
func (s *Store) PostMedia(ctx context.Context, req *api.Request, slug string, media *collection.Media) (*api.Entry, error) {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return nil, err
	}

	id := api.NewEntryID()
	now := s.now().UTC()
	title := strings.TrimSpace(slug)
	if title == "" {
		title = id
	}
	entry := &api.Entry{
		ID:        api.EntryURN(id),
		Title:     title,
		Authors:   []api.Person{{Name: auth.SubjectFromContext(ctx)}},
		Content:   &api.Content{Type: media.ContentType, Src: id},
		Published: now,
		Updated:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &record{entry: entry, media: cloneMedia(media), tenantID: storage.TenantFromContext(ctx)}
	if err := s.insert(req, id, rec); err != nil {
		return nil, storage.StatusError(err)
	}
	return cloneEntry(entry), nil
}

// Media returns the media resource of an entry.
func (s *Store) Media(ctx context.Context, _ *api.Request, id string) (*collection.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.lookupMedia(ctx, id)
	if err != nil {
		return nil, storage.StatusError(err)
	}
	return cloneMedia(r.media), nil
}

// PutMedia replaces the media resource of an entry.
func (s *Store) PutMedia(ctx context.Context, req *api.Request, id string, media *collection.Media) error {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupMedia(ctx, id)
	if err != nil {
		return storage.StatusError(err)
	}

	prevEntry, prevMedia := r.entry, r.media
	updated := cloneEntry(prevEntry)
	updated.Updated = s.now().UTC()
	updated.Content.Type = media.ContentType

	r.entry, r.media = updated, cloneMedia(media)
	s.logUndo(req, func() { r.entry, r.media = prevEntry, prevMedia })
	return nil
}

// DeleteMedia removes a media resource and its media link entry.
func (s *Store) DeleteMedia(ctx context.Context, req *api.Request, id string) error {
	if err := auth.Authorize(ctx, s.writeScope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupMedia(ctx, id)
	if err != nil {
		return storage.StatusError(err)
	}
	key := api.EntryIDFromURN(id)
	s.remove(key)
	s.logUndo(req, func() { s.restore(key, r) })
	return nil
}

// Categories returns the configured category document, or an empty one.
func (s *Store) Categories(_ context.Context, _ *api.Request) (*api.Categories, error) {
	if s.categories == nil {
		return &api.Categories{}, nil
	}
	out := *s.categories
	out.Categories = slices.Clone(s.categories.Categories)
	return &out, nil
}

// ExtensionRequest declines every request.
func (s *Store) ExtensionRequest(_ context.Context, _ *api.Request) (*api.Response, error) {
	return nil, nil
}

// Start opens the undo journal of req.
func (s *Store) Start(_ context.Context, req *api.Request) error {
	req.SetAttribute(s.journalKey(), &journal{})
	return nil
}

// Compensate reverts every mutation recorded for req.
func (s *Store) Compensate(_ context.Context, req *api.Request, _ error) error {
	s.rollback(req)
	return nil
}

// End discards the journal of req. Error responses are rolled back first.
func (s *Store) End(_ context.Context, req *api.Request, resp *api.Response) error {
	if resp == nil || resp.Status >= 400 {
		s.rollback(req)
	}
	req.SetAttribute(s.journalKey(), nil)
	return nil
}

func (s *Store) rollback(req *api.Request) {
	j, ok := req.Attribute(s.journalKey()).(*journal)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Log("storage", "rolling back journal", "collection", s.name, "steps", len(j.undo))
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

func (s *Store) journalKey() string {
	return "memory.journal." + s.name
}

// logUndo records an undo step when req carries an open journal.
// Must be called with s.mu held.
func (s *Store) logUndo(req *api.Request, undo func()) {
	if req == nil {
		return
	}
	if j, ok := req.Attribute(s.journalKey()).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// lookup finds a record visible to the caller's tenant.
// Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*record, error) {
	r, ok := s.records[api.EntryIDFromURN(id)]
	if !ok || !storage.Visible(ctx, r.tenantID) {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) lookupMedia(ctx context.Context, id string) (*record, error) {
	r, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.media == nil {
		return nil, storage.ErrNoMedia
	}
	return r, nil
}

// insert adds a record, evicting the oldest one at capacity.
// Must be called with s.mu held.
func (s *Store) insert(req *api.Request, key string, r *record) error {
	if _, exists := s.records[key]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.records) >= s.maxSize {
		if evictedKey, evicted := s.evictOldest(); evicted != nil {
			s.logUndo(req, func() { s.restore(evictedKey, evicted) })
		}
	}

	s.seq++
	r.seq = s.seq
	r.lruElem = s.lruList.PushFront(key)
	s.records[key] = r
	s.logUndo(req, func() { s.remove(key) })
	return nil
}

// remove deletes a record. Must be called with s.mu held.
func (s *Store) remove(key string) {
	r, ok := s.records[key]
	if !ok {
		return
	}
	s.lruList.Remove(r.lruElem)
	delete(s.records, key)
}

// restore puts a removed record back at its original LRU position.
// Must be called with s.mu held.
func (s *Store) restore(key string, r *record) {
	if _, exists := s.records[key]; exists {
		return
	}
	for e := s.lruList.Front(); e != nil; e = e.Next() {
		if s.records[e.Value.(string)].seq < r.seq {
			r.lruElem = s.lruList.InsertBefore(key, e)
			s.records[key] = r
			return
		}
	}
	r.lruElem = s.lruList.PushBack(key)
	s.records[key] = r
}

// evictOldest removes the least recently created record and returns it.
// Must be called with s.mu held.
func (s *Store) evictOldest() (string, *record) {
	back := s.lruList.Back()
	if back == nil {
		return "", nil
	}

	key := back.Value.(string)
	r := s.records[key]
	s.lruList.Remove(back)
	delete(s.records, key)
	return key, r
}

func stripEditLinks(links []api.Link) []api.Link {
	return slices.DeleteFunc(links, func(l api.Link) bool {
		return l.Rel == api.RelEdit || l.Rel == api.RelEditMedia
	})
}

func cloneEntry(e *api.Entry) *api.Entry {
	out := *e
	out.Authors = slices.Clone(e.Authors)
	out.Categories = slices.Clone(e.Categories)
	out.Links = slices.Clone(e.Links)
	out.Content = cloneContent(e.Content)
	return &out
}

func cloneContent(c *api.Content) *api.Content {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneMedia(m *collection.Media) *collection.Media {
	return &collection.Media{ContentType: m.ContentType, Data: slices.Clone(m.Data)}
}

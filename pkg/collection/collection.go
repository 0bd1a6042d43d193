// Package collection defines the contract between request processors and
// the business objects that back an AtomPub collection.
//
// Every collection is served by an [Adapter]. Adapters may additionally
// implement [MediaAdapter] (binary media resources) and
// [CategoriesAdapter] (category documents). Transactional behavior is a
// separate optional capability, transaction.Transactional, checked once
// per request by the dispatcher.
package collection

import (
	"bytes"
	"context"
	"io"

	"github.com/rhuss/sense/pkg/api"
)

// Adapter serves the entries of one collection. Methods return an
// *api.StatusError for expected client failures (missing entries, invalid
// payloads, forbidden writes).
type Adapter interface {
	// Name returns the collection name, the path segment it is served under.
	Name() string

	// Feed returns the collection feed, newest entries first.
	Feed(ctx context.Context, req *api.Request) (*api.Feed, error)

	// Entry returns a single entry.
	Entry(ctx context.Context, req *api.Request, id string) (*api.Entry, error)

	// PostEntry creates a new entry from the submitted one and returns the
	// stored entry with its server-assigned ID and links.
	PostEntry(ctx context.Context, req *api.Request, entry *api.Entry) (*api.Entry, error)

	// PutEntry replaces an existing entry.
	PutEntry(ctx context.Context, req *api.Request, id string, entry *api.Entry) (*api.Entry, error)

	// DeleteEntry removes an entry and its media resource, if any.
	DeleteEntry(ctx context.Context, req *api.Request, id string) error

	// ExtensionRequest handles requests no processor recognized. Returning
	// a nil response declines the request.
	ExtensionRequest(ctx context.Context, req *api.Request) (*api.Response, error)
}

// Media is a binary media resource.
type Media struct {
	ContentType string
	Data        []byte
}

// Reader returns a reader over the media bytes.
func (m *Media) Reader() io.Reader {
	return bytes.NewReader(m.Data)
}

// MediaAdapter is implemented by adapters that accept media resources.
type MediaAdapter interface {
	Adapter

	// PostMedia stores a media resource and returns its media link entry.
	PostMedia(ctx context.Context, req *api.Request, slug string, media *Media) (*api.Entry, error)

	// Media returns the media resource of an entry.
	Media(ctx context.Context, req *api.Request, id string) (*Media, error)

	// PutMedia replaces the media resource of an entry.
	PutMedia(ctx context.Context, req *api.Request, id string, media *Media) error

	// DeleteMedia removes the media resource and its media link entry.
	DeleteMedia(ctx context.Context, req *api.Request, id string) error
}

// CategoriesAdapter is implemented by adapters that publish a category document.
type CategoriesAdapter interface {
	Adapter

	// Categories returns the category document of the collection.
	Categories(ctx context.Context, req *api.Request) (*api.Categories, error)
}

package processor

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/workspace"
)

const defaultMediaType = "application/octet-stream"

// ServiceProcessor serves the service document.
type ServiceProcessor struct{}

func (ServiceProcessor) Process(_ context.Context, req *api.Request, wm workspace.Manager, _ collection.Adapter) (*api.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		resp := api.OK(&api.Service{Workspaces: wm.Workspaces(req)})
		resp.ContentType = api.ContentTypeService
		return resp, nil
	case http.MethodOptions:
		return api.Options(http.MethodGet, http.MethodHead, http.MethodOptions), nil
	}
	return nil, nil
}

// CategoriesProcessor serves collection category documents. Adapters
// without category support leave the request unhandled.
type CategoriesProcessor struct{}

func (CategoriesProcessor) Process(ctx context.Context, req *api.Request, _ workspace.Manager, adapter collection.Adapter) (*api.Response, error) {
	ca, ok := adapter.(collection.CategoriesAdapter)
	if !ok {
		return nil, nil
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		cats, err := ca.Categories(ctx, req)
		if err != nil {
			return nil, err
		}
		resp := api.OK(cats)
		resp.ContentType = api.ContentTypeCategories
		return resp, nil
	case http.MethodOptions:
		return api.Options(http.MethodGet, http.MethodHead, http.MethodOptions), nil
	}
	return nil, nil
}

// CollectionProcessor lists a collection and creates entries or media
// resources in it.
type CollectionProcessor struct{}

func (CollectionProcessor) Process(ctx context.Context, req *api.Request, wm workspace.Manager, adapter collection.Adapter) (*api.Response, error) {
	name := req.Target().Param(api.ParamCollection)

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		feed, err := adapter.Feed(ctx, req)
		if err != nil {
			return nil, err
		}
		out := *feed
		out.Links = append(slices.Clone(feed.Links), api.Link{
			Rel:  api.RelSelf,
			Href: wm.URLFor(req, api.TypeCollection, map[string]string{api.ParamCollection: name}),
		})
		out.Entries = make([]*api.Entry, 0, len(feed.Entries))
		for _, e := range feed.Entries {
			out.Entries = append(out.Entries, withLinks(req, wm, name, e))
		}
		resp := api.OK(&out)
		resp.ContentType = api.ContentTypeAtomFeed
		return resp, nil

	case http.MethodPost:
		var (
			created *api.Entry
			err     error
		)
		if isAtom(req) {
			var entry *api.Entry
			if entry, err = decodeEntry(req); err != nil {
				return nil, err
			}
			created, err = adapter.PostEntry(ctx, req, entry)
		} else {
			ma, ok := adapter.(collection.MediaAdapter)
			if !ok {
				return nil, api.NewUnsupportedMediaTypeError(fmt.Sprintf("collection %q only accepts Atom entries", name))
			}
			var media *collection.Media
			if media, err = readMedia(req); err != nil {
				return nil, err
			}
			created, err = ma.PostMedia(ctx, req, req.Header.Get("Slug"), media)
		}
		if err != nil {
			return nil, err
		}
		entry := withLinks(req, wm, name, created)
		resp := api.Created(entry.Link(api.RelEdit), entry)
		resp.ContentType = api.ContentTypeAtomEntry
		return resp, nil

	case http.MethodOptions:
		return api.Options(http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions), nil
	}
	return nil, nil
}

// EntryProcessor reads, replaces and deletes entries.
type EntryProcessor struct{}

func (EntryProcessor) Process(ctx context.Context, req *api.Request, wm workspace.Manager, adapter collection.Adapter) (*api.Response, error) {
	name := req.Target().Param(api.ParamCollection)
	id := req.Target().Param(api.ParamEntry)

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		entry, err := adapter.Entry(ctx, req, id)
		if err != nil {
			return nil, err
		}
		resp := api.OK(withLinks(req, wm, name, entry))
		resp.ContentType = api.ContentTypeAtomEntry
		return resp, nil

	case http.MethodPut:
		if !isAtom(req) {
			return nil, api.NewUnsupportedMediaTypeError("entries must be Atom documents")
		}
		entry, err := decodeEntry(req)
		if err != nil {
			return nil, err
		}
		updated, err := adapter.PutEntry(ctx, req, id, entry)
		if err != nil {
			return nil, err
		}
		resp := api.OK(withLinks(req, wm, name, updated))
		resp.ContentType = api.ContentTypeAtomEntry
		return resp, nil

	case http.MethodDelete:
		if err := adapter.DeleteEntry(ctx, req, id); err != nil {
			return nil, err
		}
		return api.NoContent(), nil

	case http.MethodOptions:
		return api.Options(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions), nil
	}
	return nil, nil
}

// MediaProcessor serves media resources. Adapters without media support
// leave the request unhandled.
type MediaProcessor struct{}

func (MediaProcessor) Process(ctx context.Context, req *api.Request, _ workspace.Manager, adapter collection.Adapter) (*api.Response, error) {
	ma, ok := adapter.(collection.MediaAdapter)
	if !ok {
		return nil, nil
	}
	id := req.Target().Param(api.ParamEntry)

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		media, err := ma.Media(ctx, req, id)
		if err != nil {
			return nil, err
		}
		resp := api.OK(media.Data)
		resp.ContentType = media.ContentType
		return resp, nil

	case http.MethodPut:
		media, err := readMedia(req)
		if err != nil {
			return nil, err
		}
		if err := ma.PutMedia(ctx, req, id, media); err != nil {
			return nil, err
		}
		return api.NoContent(), nil

	case http.MethodDelete:
		if err := ma.DeleteMedia(ctx, req, id); err != nil {
			return nil, err
		}
		return api.NoContent(), nil

	case http.MethodOptions:
		return api.Options(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions), nil
	}
	return nil, nil
}

func isAtom(req *api.Request) bool {
	return req.ContentType() == api.ContentTypeAtom
}

func decodeEntry(req *api.Request) (*api.Entry, error) {
	var entry api.Entry
	if err := xml.NewDecoder(req.Body).Decode(&entry); err != nil {
		return nil, api.WrapStatusError(http.StatusBadRequest, "invalid Atom entry", err)
	}
	return &entry, nil
}

func readMedia(req *api.Request) (*collection.Media, error) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, api.WrapStatusError(http.StatusBadRequest, "reading media body", err)
	}
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		ct = defaultMediaType
	}
	return &collection.Media{ContentType: ct, Data: data}, nil
}

// withLinks returns a copy of entry carrying edit links for the request.
// Media link entries also get an edit-media link and a content src.
func withLinks(req *api.Request, wm workspace.Manager, name string, entry *api.Entry) *api.Entry {
	out := *entry
	params := map[string]string{
		api.ParamCollection: name,
		api.ParamEntry:      api.EntryIDFromURN(entry.ID),
	}

	out.Links = make([]api.Link, 0, len(entry.Links)+2)
	for _, l := range entry.Links {
		if l.Rel != api.RelEdit && l.Rel != api.RelEditMedia {
			out.Links = append(out.Links, l)
		}
	}
	out.Links = append(out.Links, api.Link{Rel: api.RelEdit, Href: wm.URLFor(req, api.TypeEntry, params)})

	if entry.Content != nil && entry.Content.Src != "" {
		mediaURL := wm.URLFor(req, api.TypeMedia, params)
		content := *entry.Content
		content.Src = mediaURL
		out.Content = &content
		out.Links = append(out.Links, api.Link{Rel: api.RelEditMedia, Href: mediaURL, Type: content.Type})
	}
	return &out
}

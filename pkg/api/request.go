package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request is a single inbound AtomPub request as seen by the dispatcher.
// It is owned by the hosting transport and used by one goroutine for the
// duration of one dispatch; it is not safe for concurrent use.
type Request struct {
	Method     string
	URL        *url.URL
	Header     http.Header
	Body       io.Reader
	RemoteAddr string

	target *Target
	attrs  map[string]any
}

// NewRequest creates a request for the given method and absolute or
// path-only URL. A nil body is replaced with an empty reader.
func NewRequest(method, rawURL string, body io.Reader) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing request URL: %w", err)
	}
	if body == nil {
		body = http.NoBody
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// Target returns the resolved target, or nil if none has been resolved.
func (r *Request) Target() *Target {
	return r.target
}

// SetTarget records the resolved target.
func (r *Request) SetTarget(t *Target) {
	r.target = t
}

// Attribute returns a per-request attribute, or nil.
func (r *Request) Attribute(key string) any {
	return r.attrs[key]
}

// SetAttribute stores a per-request attribute. Setting nil removes it.
func (r *Request) SetAttribute(key string, value any) {
	if value == nil {
		delete(r.attrs, key)
		return
	}
	if r.attrs == nil {
		r.attrs = make(map[string]any)
	}
	r.attrs[key] = value
}

// Path returns the request path, never empty.
func (r *Request) Path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// ContentType returns the media type of the request body without
// parameters, lower-cased. Returns "" when the header is missing or invalid.
func (r *Request) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// BaseURL returns scheme and host of the request URL. Requests built from
// a path only yield an empty scheme and host, so generated links stay relative.
func (r *Request) BaseURL() *url.URL {
	if r.URL == nil {
		return &url.URL{}
	}
	return &url.URL{Scheme: r.URL.Scheme, Host: r.URL.Host}
}

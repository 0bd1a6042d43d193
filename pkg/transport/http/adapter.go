package http

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/transport"
)

// Dispatcher classifies and processes AtomPub requests. It is implemented
// by provider.Provider.
type Dispatcher interface {
	// ResolveTarget classifies a request against the workspace layout.
	ResolveTarget(req *api.Request) *api.Target

	// Handler returns the dispatcher wrapped in the filters for req.
	Handler(req *api.Request) transport.Handler
}

// Adapter serves a Dispatcher over HTTP. It converts each HTTP request
// into an api.Request, runs it through the dispatcher's filter chain and
// serializes the resulting api.Response.
type Adapter struct {
	dispatcher Dispatcher
	config     Config
	logger     *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	// MaxBodySize limits request bodies in bytes. 0 disables the limit.
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter for d.
func NewAdapter(d Dispatcher, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{dispatcher: d, config: cfg, logger: logger}
}

var _ http.Handler = (*Adapter)(nil)

// ServeHTTP implements http.Handler.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// If the client sent X-Request-ID, propagate it into the context.
	if id := r.Header.Get(transport.RequestIDHeader); id != "" {
		ctx = transport.ContextWithRequestID(ctx, id)
	}

	body := &limitedBody{r: r.Body}
	if a.config.MaxBodySize > 0 {
		body.r = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	}

	req, err := newRequest(r, body)
	if err != nil {
		transport.WriteErrorResponse(w, http.StatusBadRequest, "malformed request URL")
		return
	}
	req.SetTarget(a.dispatcher.ResolveTarget(req))

	resp := a.dispatcher.Handler(req).Process(ctx, req)
	if resp == nil {
		resp = api.ServerError(errors.New("dispatcher returned no response"))
	}
	if body.exceeded && resp.Status >= http.StatusBadRequest {
		resp = api.NewErrorResponse(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize))
	}

	a.writeResponse(ctx, w, r, resp)
}

// newRequest converts an HTTP request. The URL is made absolute from the
// Host header so that generated links point back at the server.
func newRequest(r *http.Request, body io.Reader) (*api.Request, error) {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}

	req, err := api.NewRequest(r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.RemoteAddr = r.RemoteAddr
	return req, nil
}

// writeResponse serializes resp. Atom model values are written as XML,
// []byte and io.Reader entities verbatim, error documents as JSON.
func (a *Adapter) writeResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *api.Response) {
	body, contentType, err := encodeEntity(resp)
	if err != nil {
		a.logger.Error("encoding response failed",
			"request_id", transport.RequestIDFromContext(ctx),
			"path", r.URL.Path,
			"error", err,
		)
		transport.WriteErrorResponse(w, http.StatusInternalServerError, "")
		return
	}
	if c, ok := body.(io.Closer); ok {
		defer c.Close()
	}

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	if h.Get(transport.RequestIDHeader) == "" {
		if id := transport.RequestIDFromContext(ctx); id != "" {
			h.Set(transport.RequestIDHeader, id)
		}
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if b, ok := body.(*bytes.Reader); ok {
		h.Set("Content-Length", strconv.Itoa(b.Len()))
	}

	w.WriteHeader(resp.Status)
	if body == nil || r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		a.logger.Warn("writing response body failed",
			"request_id", transport.RequestIDFromContext(ctx),
			"error", err,
		)
	}
}

// encodeEntity renders the entity of resp. Model values are encoded up
// front so that encoding failures can still be reported as a 500.
func encodeEntity(resp *api.Response) (io.Reader, string, error) {
	ct := resp.ContentType
	switch e := resp.Entity.(type) {
	case nil:
		return nil, ct, nil
	case []byte:
		return bytes.NewReader(e), orDefault(ct, "application/octet-stream"), nil
	case string:
		return bytes.NewReader([]byte(e)), orDefault(ct, "text/plain; charset=utf-8"), nil
	case io.Reader:
		return e, orDefault(ct, "application/octet-stream"), nil
	case *api.ErrorResponse:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, "", fmt.Errorf("encoding error document: %w", err)
		}
		return bytes.NewReader(data), orDefault(ct, api.ContentTypeJSON), nil
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(resp.Entity); err != nil {
		return nil, "", fmt.Errorf("encoding %T: %w", resp.Entity, err)
	}
	return bytes.NewReader(buf.Bytes()), orDefault(ct, xmlContentType(resp.Entity)), nil
}

func xmlContentType(entity any) string {
	switch entity.(type) {
	case *api.Feed:
		return api.ContentTypeAtomFeed
	case *api.Entry:
		return api.ContentTypeAtomEntry
	case *api.Service:
		return api.ContentTypeService
	case *api.Categories:
		return api.ContentTypeCategories
	}
	return "application/xml"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// limitedBody records whether the body size limit was hit while a
// processor read the request.
type limitedBody struct {
	r        io.Reader
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		b.exceeded = true
	}
	return n, err
}

package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/sense/pkg/api"
)

func newRequest(t *testing.T) *api.Request {
	t.Helper()
	req, err := api.NewRequest(http.MethodGet, "/notes/42", nil)
	require.NoError(t, err)
	req.SetTarget(api.NewTarget(api.TypeEntry, map[string]string{api.ParamCollection: "notes", api.ParamEntry: "42"}))
	return req
}

func respond(resp *api.Response) Handler {
	return HandlerFunc(func(context.Context, *api.Request) *api.Response { return resp })
}

func panics(msg string) Handler {
	return HandlerFunc(func(context.Context, *api.Request) *api.Response { panic(msg) })
}

// textLogger returns a slog text logger writing to the returned buffer.
func textLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestChainAppliesFiltersInOrder(t *testing.T) {
	var order []string
	trace := func(name string) Filter {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
				order = append(order, name+":before")
				resp := next.Process(ctx, req)
				order = append(order, name+":after")
				return resp
			})
		}
	}
	handler := HandlerFunc(func(context.Context, *api.Request) *api.Response {
		order = append(order, "handler")
		return api.OK(nil)
	})

	Chain(trace("first"), nil, trace("second"), trace("third"))(handler).Process(context.Background(), newRequest(t))

	assert.Equal(t, []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}, order)
}

func TestChainShortCircuit(t *testing.T) {
	deny := func(Handler) Handler { return respond(api.NewErrorResponse(http.StatusForbidden, "")) }
	called := false
	handler := HandlerFunc(func(context.Context, *api.Request) *api.Response {
		called = true
		return api.OK(nil)
	})

	resp := Chain(deny)(handler).Process(context.Background(), newRequest(t))

	assert.False(t, called, "the handler is skipped")
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestRecoveryCatchesPanic(t *testing.T) {
	logger, buf := textLogger()

	resp := Recovery(logger)(panics("nil map write")).Process(context.Background(), newRequest(t))

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	detail := resp.ErrorDetail()
	require.NotNil(t, detail)
	assert.Contains(t, detail.Detail, "nil map write")
	assert.Contains(t, buf.String(), "recovered from panic")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestRecoveryInsideRequestIDLogsID(t *testing.T) {
	logger, buf := textLogger()

	resp := Chain(RequestID(), Recovery(logger))(panics("filter panic")).Process(context.Background(), newRequest(t))

	require.Equal(t, http.StatusInternalServerError, resp.Status)
	id := resp.Header.Get(RequestIDHeader)
	require.NotEmpty(t, id, "the recovered response carries the request ID")
	assert.Contains(t, buf.String(), "request_id="+id)
}

func TestRecoveryPassesThroughNormalExecution(t *testing.T) {
	resp := Recovery(nil)(respond(api.OK(nil))).Process(context.Background(), newRequest(t))
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestRequestIDGeneratesNewID(t *testing.T) {
	var seen string
	handler := HandlerFunc(func(ctx context.Context, _ *api.Request) *api.Response {
		seen = RequestIDFromContext(ctx)
		return api.OK(nil)
	})

	resp := RequestID()(handler).Process(context.Background(), newRequest(t))

	_, err := uuid.FromString(seen)
	assert.NoError(t, err, "request ID %q is a UUID", seen)
	assert.Equal(t, seen, resp.Header.Get(RequestIDHeader))
}

func TestRequestIDPropagatesExisting(t *testing.T) {
	var seen string
	handler := HandlerFunc(func(ctx context.Context, _ *api.Request) *api.Response {
		seen = RequestIDFromContext(ctx)
		return api.OK(nil)
	})

	ctx := ContextWithRequestID(context.Background(), "existing-id-123")
	resp := RequestID()(handler).Process(ctx, newRequest(t))

	assert.Equal(t, "existing-id-123", seen)
	assert.Equal(t, "existing-id-123", resp.Header.Get(RequestIDHeader))
}

func TestRequestIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	wrapped := RequestID()(HandlerFunc(func(ctx context.Context, _ *api.Request) *api.Response {
		ids[RequestIDFromContext(ctx)] = true
		return api.OK(nil)
	}))

	for range 100 {
		wrapped.Process(context.Background(), newRequest(t))
	}

	assert.Len(t, ids, 100)
}

func TestLoggingEmitsFields(t *testing.T) {
	logger, buf := textLogger()

	ctx := ContextWithRequestID(context.Background(), "req-log-test")
	Logging(logger)(respond(api.OK(nil))).Process(ctx, newRequest(t))

	for _, want := range []string{
		"level=INFO",
		"request completed",
		"request_id=req-log-test",
		"method=GET",
		"path=/notes/42",
		`target="entry(collection=notes,entry=42)"`,
		"status=200",
	} {
		assert.Contains(t, buf.String(), want)
	}
}

func TestLoggingEmitsErrorOnServerFailure(t *testing.T) {
	logger, buf := textLogger()

	Logging(logger)(respond(api.ServerError(errors.New("index corrupted")))).Process(context.Background(), newRequest(t))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "request failed")
	assert.Contains(t, out, "index corrupted")
}

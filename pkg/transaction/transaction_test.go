package transaction

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/sense/pkg/api"
)

// recorder is a Transactional that records the hooks it sees.
type recorder struct {
	calls         []string
	startErr      error
	endErr        error
	compensateErr error
	endResp       *api.Response
	cause         error
}

func (r *recorder) Start(_ context.Context, _ *api.Request) error {
	r.calls = append(r.calls, "start")
	return r.startErr
}

func (r *recorder) End(_ context.Context, _ *api.Request, resp *api.Response) error {
	r.calls = append(r.calls, "end")
	r.endResp = resp
	return r.endErr
}

func (r *recorder) Compensate(_ context.Context, _ *api.Request, cause error) error {
	r.calls = append(r.calls, "compensate")
	r.cause = cause
	return r.compensateErr
}

func newRequest(t *testing.T) *api.Request {
	t.Helper()
	req, err := api.NewRequest("POST", "/notes", nil)
	require.NoError(t, err)
	req.SetTarget(api.NewTarget(api.TypeCollection, map[string]string{api.ParamCollection: "notes"}))
	return req
}

func TestRunWithoutCapability(t *testing.T) {
	g := NewGuard(nil)
	assert.False(t, g.Transactional())

	want := api.OK(nil)
	resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.Same(t, want, resp)
	assert.Equal(t, StateIdle, g.State())
}

func TestRunSuccess(t *testing.T) {
	tx := &recorder{}
	g := NewGuard(tx)
	require.True(t, g.Transactional())

	want := api.Created("/notes/1", nil)
	resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		tx.calls = append(tx.calls, "process")
		return want, nil
	})

	require.NoError(t, err)
	assert.Same(t, want, resp)
	assert.Equal(t, []string{"start", "process", "end"}, tx.calls)
	assert.Same(t, want, tx.endResp)
	assert.Equal(t, StateCompleted, g.State())
}

func TestRunEndFailureAfterSuccess(t *testing.T) {
	endErr := errors.New("commit failed")
	tx := &recorder{endErr: endErr}
	var logs bytes.Buffer
	g := NewGuard(tx, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		return api.Created("/notes/1", nil), nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, endErr)
	assert.Nil(t, resp, "the response of an unfinished transaction is discarded")
	assert.Equal(t, []string{"start", "end"}, tx.calls)
	assert.Equal(t, StateFailed, g.State())
	assert.Empty(t, logs.String(), "the failure is returned, not logged")
}

func TestRunStartFailure(t *testing.T) {
	startErr := errors.New("no connection")
	tx := &recorder{startErr: startErr}
	g := NewGuard(tx)

	ran := false
	resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		ran = true
		return api.OK(nil), nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, startErr)
	assert.Nil(t, resp)
	assert.False(t, ran, "work must not run when start fails")
	assert.Equal(t, []string{"start"}, tx.calls)
	assert.Equal(t, StateFailed, g.State())
}

func TestRunFailureCompensatesThenEnds(t *testing.T) {
	tests := []struct {
		name          string
		compensateErr error
		endErr        error
	}{
		{name: "hooks succeed"},
		{name: "compensate fails", compensateErr: errors.New("rollback failed")},
		{name: "end fails", endErr: errors.New("close failed")},
		{name: "both fail", compensateErr: errors.New("rollback failed"), endErr: errors.New("close failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			tx := &recorder{compensateErr: tt.compensateErr, endErr: tt.endErr}
			g := NewGuard(tx, WithLogger(logger))

			workErr := api.NewConflictError("entry exists")
			resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
				return nil, workErr
			})

			assert.Nil(t, resp)
			assert.Same(t, workErr, err, "the original failure is returned")
			assert.Equal(t, []string{"start", "compensate", "end"}, tx.calls)
			assert.Same(t, workErr, tx.cause)
			assert.Nil(t, tx.endResp, "end receives no response after a failure")
			assert.Equal(t, StateFailed, g.State())

			if tt.compensateErr != nil {
				assert.Contains(t, logs.String(), "transaction compensation failed")
			}
			if tt.endErr != nil {
				assert.Contains(t, logs.String(), "transaction end failed")
			}
			if tt.compensateErr == nil && tt.endErr == nil {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestRunRecoversPanic(t *testing.T) {
	tx := &recorder{}
	g := NewGuard(tx)

	resp, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		panic("boom")
	})

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"start", "compensate", "end"}, tx.calls)
}

func TestRunPassThroughRecoversPanic(t *testing.T) {
	g := NewGuard(nil)

	_, err := g.Run(context.Background(), newRequest(t), func(context.Context) (*api.Response, error) {
		panic("boom")
	})
	require.Error(t, err)
}

func TestGuardIsSingleUse(t *testing.T) {
	tx := &recorder{}
	g := NewGuard(tx)
	work := func(context.Context) (*api.Response, error) { return api.OK(nil), nil }

	_, err := g.Run(context.Background(), newRequest(t), work)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), newRequest(t), work)
	require.Error(t, err)
	assert.Equal(t, []string{"start", "end"}, tx.calls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "compensating", StateCompensating.String())
	assert.Equal(t, "State(42)", State(42).String())
}

package noop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/sense/pkg/auth"
)

func TestAuthenticateAcceptsEverything(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/notes/1", nil)

	open := (&Authenticator{Scopes: []string{"notes:write"}}).Authenticate(context.Background(), r)
	require.Equal(t, auth.Yes, open.Decision)
	assert.Equal(t, auth.Anonymous, open.Identity.Subject)
	assert.True(t, open.Identity.HasScope("notes:write"))

	readOnly := (&Authenticator{}).Authenticate(context.Background(), r)
	require.Equal(t, auth.Yes, readOnly.Decision)
	assert.False(t, readOnly.Identity.HasScope("notes:write"), "no scopes unless configured")
}

// Package noop provides a no-op authenticator that accepts all requests.
// Used for development and open deployments; every caller becomes the
// anonymous subject without any write scopes.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/sense/pkg/auth"
)

// Authenticator always returns Yes with an anonymous identity.
type Authenticator struct {
	// Scopes are granted to the anonymous identity. Empty by default,
	// so collections that require a write scope stay read-only.
	Scopes []string
}

var _ auth.Authenticator = (*Authenticator)(nil)

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     auth.Anonymous,
			ServiceTier: "default",
			Scopes:      append([]string(nil), a.Scopes...),
		},
	}
}

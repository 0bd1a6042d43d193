package auth

import (
	"context"

	"github.com/rhuss/sense/pkg/storage"
)

type identityKey struct{}

// WithIdentity binds the authenticated subject to ctx. When the identity
// belongs to a tenant, storage access for the rest of the request is
// scoped to that tenant.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	return storage.WithTenant(ctx, id.TenantID())
}

// IdentityFromContext returns the identity bound to ctx, or nil when the
// request carries none.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// SubjectFromContext returns the name recorded as atom:author of entries
// written in ctx. Requests without a subject write as Anonymous.
func SubjectFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return Anonymous
}

package storage

import "context"

type tenantKey struct{}

// WithTenant scopes ctx to tenant. Adapters record new entries under it
// and hide entries owned by other tenants. An empty tenant leaves ctx as
// it is.
func WithTenant(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the tenant ctx is scoped to. An empty result
// means single-tenant mode.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}

// Visible reports whether an entry owned by owner may be read in ctx.
// Unscoped callers see every entry of a collection.
func Visible(ctx context.Context, owner string) bool {
	tenant := TenantFromContext(ctx)
	return tenant == "" || tenant == owner
}

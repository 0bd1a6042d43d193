package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantScoping(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TenantFromContext(ctx))

	scoped := WithTenant(ctx, "org-1")
	assert.Equal(t, "org-1", TenantFromContext(scoped))
	assert.Equal(t, "org-1", TenantFromContext(WithTenant(scoped, "")), "an empty tenant keeps the existing scope")

	foreign := context.WithValue(ctx, "tenant", "org-1")
	assert.Empty(t, TenantFromContext(foreign))
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		owner  string
		want   bool
	}{
		{name: "single tenant sees owned entry", owner: "org-1", want: true},
		{name: "single tenant sees unowned entry", want: true},
		{name: "same tenant", tenant: "org-1", owner: "org-1", want: true},
		{name: "other tenant", tenant: "org-2", owner: "org-1", want: false},
		{name: "scoped caller and unowned entry", tenant: "org-1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithTenant(context.Background(), tt.tenant)
			assert.Equal(t, tt.want, Visible(ctx, tt.owner))
		})
	}
}

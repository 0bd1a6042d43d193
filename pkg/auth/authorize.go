package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rhuss/sense/pkg/api"
)

// Authorize checks that the identity in ctx holds scope. An empty scope
// always passes. The returned error is a 403 *api.StatusError, so a
// rejected write is compensated and reported to the client as forbidden.
func Authorize(ctx context.Context, scope string) error {
	if scope == "" {
		return nil
	}
	id := IdentityFromContext(ctx)
	if id.HasScope(scope) {
		return nil
	}
	subject := Anonymous
	if id != nil {
		subject = id.Subject
	}
	return api.WrapStatusError(http.StatusForbidden, fmt.Sprintf("scope %q required", scope),
		fmt.Errorf("%w: subject %q", ErrForbidden, subject))
}

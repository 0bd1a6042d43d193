package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/rhuss/sense/pkg/debug"
	"github.com/rhuss/sense/pkg/observability"
	"github.com/rhuss/sense/pkg/transport"
)

// Middleware creates HTTP middleware from an AuthChain and optional RateLimiter.
// Requests outside bypassEndpoints are authenticated, counted against the
// subject's budget for their RequestClass, and continue with the identity
// (and its tenant) bound to the request context.
//
// A chain rejection wrapping ErrForbidden means the credentials are valid
// but insufficient and is answered with 403; any other rejection with 401.
// Rejections are written as JSON error documents.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				reject(w, r, result.Err)
				return
			}
			id := result.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorResponse(w, http.StatusInternalServerError, "internal authentication error")
				return
			}

			class := ClassOf(r.Method)
			debug.Log("auth", "authentication succeeded",
				"subject", id.Subject,
				"class", class,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id, class); err != nil {
					throttle(w, id, class, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrForbidden) {
		slog.Info("request forbidden",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		transport.WriteErrorResponse(w, http.StatusForbidden, err.Error())
		return
	}
	slog.Warn("authentication failed",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"error", err,
	)
	w.Header().Set("WWW-Authenticate", `Bearer realm="sense"`)
	transport.WriteErrorResponse(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
}

func throttle(w http.ResponseWriter, id *Identity, class RequestClass, err error) {
	slog.Warn("rate limit exceeded",
		"subject", id.Subject,
		"tier", id.ServiceTier,
		"class", class,
	)
	observability.RateLimitRejectedTotal.WithLabelValues(id.ServiceTier, string(class)).Inc()

	var le *LimitError
	if errors.As(err, &le) && le.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(le.RetryAfter.Seconds()))))
	}
	transport.WriteErrorResponse(w, http.StatusTooManyRequests, err.Error())
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Package jwt authenticates bearer tokens issued by an OIDC provider.
//
// Tokens are verified against the provider's JWKS and mapped onto an
// [auth.Identity]. The subject claim becomes the atom:author of entries
// the caller writes. The tenant claim scopes storage, the tier claim
// selects the rate-limit budget and the scope claim carries the scopes
// collections require for writes. When [Config.WriteScope] is set, a token
// without it is refused for any request that modifies a collection, before
// a collection adapter sees the request.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/sense/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer and Audience are checked against iss and aud when set.
	Issuer   string
	Audience string

	// JWKSURL serves the keys tokens are signed with.
	JWKSURL string

	// Claim names. Defaults: sub, tenant_id, scope, tier.
	UserClaim   string
	TenantClaim string
	ScopesClaim string
	TierClaim   string

	// WriteScope, when set, must be among the token's scopes for POST,
	// PUT, DELETE and other modifying requests.
	WriteScope string

	// Leeway is the clock skew tolerated on exp, nbf and iat.
	Leeway time.Duration

	// CacheTTL bounds how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates bearer tokens. It abstains for requests without
// a bearer token so other authenticators in the chain can handle them.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate verifies the bearer token of r and maps its claims.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	raw, ok := bearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if raw == "" {
		return refuse(errors.New("empty bearer token"))
	}

	token, err := a.parser.Parse(raw, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.key(ctx, kid)
	})
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return refuse(fmt.Errorf("invalid JWT: %w", err))
	}

	id, err := a.identity(claimSet(token.Claims.(jwtlib.MapClaims)))
	if err != nil {
		return refuse(err)
	}

	if a.cfg.WriteScope != "" && auth.ClassOf(r.Method) == auth.ClassWrite && !id.HasScope(a.cfg.WriteScope) {
		return refuse(fmt.Errorf("%w: token of %q lacks scope %q", auth.ErrForbidden, id.Subject, a.cfg.WriteScope))
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

// identity maps verified claims onto the caller's identity.
func (a *Authenticator) identity(claims claimSet) (*auth.Identity, error) {
	subject := claims.str(a.cfg.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim)
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: claims.str(a.cfg.TierClaim),
		Scopes:      claims.list(a.cfg.ScopesClaim),
	}
	if id.ServiceTier == "" {
		id.ServiceTier = "default"
	}
	if tenant := claims.str(a.cfg.TenantClaim); tenant != "" {
		id.Metadata = map[string]string{"tenant_id": tenant}
	}
	return id, nil
}

func refuse(err error) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// claimSet reads configurable claims from a verified token.
type claimSet jwtlib.MapClaims

func (c claimSet) str(name string) string {
	s, _ := c[name].(string)
	return s
}

// list reads a claim holding either a space-separated string (OAuth
// "scope") or a JSON array of strings.
func (c claimSet) list(name string) []string {
	var out []string
	switch v := c[name].(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/sense/pkg/auth"
	"github.com/rhuss/sense/pkg/auth/apikey"
	"github.com/rhuss/sense/pkg/auth/jwt"
	"github.com/rhuss/sense/pkg/auth/noop"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/config"
	"github.com/rhuss/sense/pkg/storage/memory"
	"github.com/rhuss/sense/pkg/storage/postgres"
	"github.com/rhuss/sense/pkg/workspace"
)

// storageBackend creates one collection adapter per configured collection.
type storageBackend struct {
	adapter func(col config.CollectionConfig) collection.Adapter
	ready   func(ctx context.Context) error
	close   func() error
}

func buildStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storageBackend, error) {
	switch cfg.Storage.Type {
	case "memory":
		return &storageBackend{
			adapter: func(col config.CollectionConfig) collection.Adapter {
				return memory.New(col.Name,
					memory.WithTitle(col.Title),
					memory.WithMaxSize(cfg.Storage.MaxSize),
					memory.WithWriteScope(col.WriteScope),
					memory.WithCategories(col.Categories.Document()),
				)
			},
		}, nil

	case "postgres":
		db, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating postgres storage: %w", err)
		}
		return &storageBackend{
			adapter: func(col config.CollectionConfig) collection.Adapter {
				return db.Collection(col.Name,
					postgres.WithTitle(col.Title),
					postgres.WithWriteScope(col.WriteScope),
					postgres.WithCategories(col.Categories.Document()),
				)
			},
			ready: db.HealthCheck,
			close: db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func buildWorkspaces(cfg *config.Config, stores *storageBackend) (*workspace.Static, error) {
	workspaces := make([]workspace.Workspace, 0, len(cfg.Workspaces))
	for _, ws := range cfg.Workspaces {
		w := workspace.Workspace{Title: ws.Title}
		for _, col := range ws.Collections {
			title := col.Title
			if title == "" {
				title = col.Name
			}
			w.Collections = append(w.Collections, workspace.Collection{
				Title:   title,
				Accept:  col.Accept,
				Adapter: stores.adapter(col),
			})
		}
		workspaces = append(workspaces, w)
	}

	wm, err := workspace.NewStatic(cfg.Server.BasePath, workspaces...)
	if err != nil {
		return nil, fmt.Errorf("building workspaces: %w", err)
	}
	return wm, nil
}

// buildAuth assembles the authentication middleware. Unauthenticated
// deployments still run the chain so every request carries an identity.
func buildAuth(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "none", "":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{Scopes: cfg.Auth.Scopes}}

	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			id := auth.Identity{
				Subject:     k.Subject,
				ServiceTier: k.ServiceTier,
				Scopes:      k.Scopes,
			}
			if id.ServiceTier == "" {
				id.ServiceTier = "default"
			}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}

	case "jwt":
		j := cfg.Auth.JWT
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:      j.Issuer,
			Audience:    j.Audience,
			JWKSURL:     j.JWKSURL,
			UserClaim:   j.UserClaim,
			TenantClaim: j.TenantClaim,
			ScopesClaim: j.ScopesClaim,
			TierClaim:   j.TierClaim,
			WriteScope:  j.WriteScope,
			Leeway:      j.Leeway,
			CacheTTL:    j.CacheTTL,
		})}

	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.Enabled {
		tiers := make(map[string]auth.Budget, len(rl.Tiers))
		for name, b := range rl.Tiers {
			tiers[name] = auth.Budget{Reads: b.Reads, Writes: b.Writes}
		}
		limiter = auth.NewInProcessLimiter(auth.Budget{Reads: rl.Default.Reads, Writes: rl.Default.Writes}, tiers)
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
}

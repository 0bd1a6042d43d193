package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/sense/pkg/config"
	"github.com/rhuss/sense/pkg/debug"
	"github.com/rhuss/sense/pkg/provider"
	"github.com/rhuss/sense/pkg/transport"
	transporthttp "github.com/rhuss/sense/pkg/transport/http"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Start the AtomPub server",
	Flags: []cli.Flag{
		configFlag,
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Listen port (overrides configuration)",
		},
	},
	Action: serveAction,
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cli.Exit(fmt.Errorf("failed to load config: %w", err), 1)
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.Server.Port = int(port)
	}

	logger := debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sense starting",
		"port", cfg.Server.Port,
		"base_path", cfg.Server.BasePath,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	if err := app.server.Run(ctx); err != nil {
		return cli.Exit(fmt.Errorf("server failed: %w", err), 1)
	}
	return nil
}

// application holds the wired server and the resources it owns.
type application struct {
	server   *transporthttp.Server
	provider *provider.Provider
	closers  []func() error
}

// Close releases storage resources in reverse order of acquisition.
func (a *application) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// build wires storage, workspaces, the dispatcher, authentication and
// the HTTP server from cfg.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	stores, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if stores.close != nil {
		app.closers = append(app.closers, stores.close)
	}

	wm, err := buildWorkspaces(cfg, stores)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.provider = provider.New(wm,
		provider.WithLogger(logger),
		provider.WithProperties(cfg.Properties),
		provider.WithFilters(
			transport.RequestID(),
			transport.Recovery(logger),
			transport.Logging(logger),
		),
	)

	authMiddleware, err := buildAuth(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	app.server = transporthttp.NewServer(app.provider,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithLogger(logger),
		transporthttp.WithMiddleware(authMiddleware),
		transporthttp.WithReadinessCheck(stores.ready),
	)
	return app, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/app"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "tenantsync",
		Usage: "Multi-tenant sync core: REST API, real-time gateway and permission bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Sources: cli.EnvVars("TENANTSYNC_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Sources: cli.EnvVars("TENANTSYNC_REDIS_ADDR"),
				Usage:   "Redis address used as the event bus",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Sources: cli.EnvVars("TENANTSYNC_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "web",
				Usage: "Serve the tenant-scoped REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Sources: cli.EnvVars("TENANTSYNC_WEB_ADDR"),
						Usage:   "HTTP listen address",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					if c.IsSet("addr") {
						cfg.WebAddr = c.String("addr")
					}
					return serve(ctx, cfg, log, "tenantsync-web", app.NewWebServer)
				},
			},
			{
				Name:  "gateway",
				Usage: "Serve the WebSocket real-time gateway",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Sources: cli.EnvVars("TENANTSYNC_GATEWAY_ADDR"),
						Usage:   "WebSocket listen address",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					if c.IsSet("addr") {
						cfg.GatewayAddr = c.String("addr")
					}
					return serve(ctx, cfg, log, "tenantsync-gateway", app.NewGatewayServer)
				},
			},
			{
				Name:  "bot",
				Usage: "Mirror membership into the external permission service",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					shutdownTracing, err := app.SetupTracing(ctx, "tenantsync-bot", cfg.OTelEndpoint)
					if err != nil {
						return fmt.Errorf("setup tracing: %w", err)
					}
					defer flush(log, shutdownTracing)

					b, err := app.NewBot(ctx, cfg, log)
					if err != nil {
						return fmt.Errorf("create bot: %w", err)
					}
					defer func() {
						if closeErr := b.Close(); closeErr != nil {
							log.Error("close resources", "error", closeErr)
						}
					}()
					log.Info("bot started")
					return b.Run(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply pending database migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					v, err := app.Migrate(ctx, cfg, log)
					if err != nil {
						return err
					}
					log.Info("schema up to date", "version", v)
					return nil
				},
			},
			{
				Name:  "bootstrap",
				Usage: "Create a tenant and its first administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant id"},
					&cli.StringFlag{Name: "name", Usage: "Tenant display name"},
					&cli.StringFlag{Name: "admin", Required: true, Usage: "User id of the first ADMIN"},
					&cli.StringFlag{Name: "email", Usage: "Admin email"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					tenant, err := app.Bootstrap(ctx, cfg, log, app.BootstrapInput{
						TenantID:    c.String("tenant"),
						TenantName:  c.String("name"),
						AdminUserID: c.String("admin"),
						AdminEmail:  c.String("email"),
					})
					if err != nil {
						return fmt.Errorf("bootstrap: %w", err)
					}
					log.Info("tenant created", "tenant_id", tenant.ID, "admin", c.String("admin"))
					return nil
				},
			},
			{
				Name:  "issue-token",
				Usage: "Print a bearer token for an existing member",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant id"},
					&cli.StringFlag{Name: "user", Required: true, Usage: "User id"},
					&cli.DurationFlag{Name: "ttl", Value: 15 * time.Minute, Usage: "Token lifetime"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					raw, err := app.IssueToken(ctx, cfg, log, c.String("tenant"), c.String("user"), c.Duration("ttl"))
					if err != nil {
						return fmt.Errorf("issue token: %w", err)
					}
					_, err = fmt.Fprintln(c.Root().Writer, raw)
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("tenantsync failed", "error", err)
		os.Exit(1)
	}
}

// setup loads env config, applies global flag overrides and builds the logger.
func setup(c *cli.Command) (app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, nil, err
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("redis-addr") {
		cfg.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	log, err := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return app.Config{}, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

type serverFactory func(context.Context, app.Config, *slog.Logger) (*http.Server, io.Closer, error)

func serve(ctx context.Context, cfg app.Config, log *slog.Logger, service string, build serverFactory) error {
	shutdownTracing, err := app.SetupTracing(ctx, service, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer flush(log, shutdownTracing)

	server, closer, err := build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Error("close resources", "error", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "service", service, "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		log.Info("received signal", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func flush(log *slog.Logger, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn("flush traces", "error", err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/permissions"
	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/redisbus"
	sqliteadapter "github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/token"
	"github.com/atvirokodosprendimai/tenantsync/internal/bot"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/usecase"
	"github.com/atvirokodosprendimai/tenantsync/internal/gateway"
	"github.com/atvirokodosprendimai/tenantsync/migrations"
	"github.com/redis/go-redis/v9"
)

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openDB opens the SQLite file and applies pending migrations.
func openDB(ctx context.Context, cfg Config, log *slog.Logger) (*gormsqlite.DB, error) {
	db, err := gormsqlite.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	applied, err := migrations.Up(ctx, writeSQLDB)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if applied > 0 {
		log.Info("migrations applied", "count", applied)
	}
	return db, nil
}

// openBus dials Redis and fails fast when it is unreachable at startup.
func openBus(ctx context.Context, cfg Config, codec *usecase.EventCodec, log *slog.Logger) (*redisbus.Bus, error) {
	bus := redisbus.New(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, codec, redisbus.WithLogger(log), redisbus.WithSendTimeout(cfg.RedisSendTimeout))
	redisbus.RouteClientLogs(log)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := bus.Ping(ctx); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return bus, nil
}

func newAuthenticator(cfg Config, db *gormsqlite.DB) (*usecase.Authenticator, error) {
	if err := cfg.validateBearer(); err != nil {
		return nil, err
	}
	verifier, err := token.NewVerifier(token.Config{
		Secret:   []byte(cfg.BearerSecret),
		Issuer:   cfg.BearerIssuer,
		Audience: cfg.BearerAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("bearer verifier: %w", err)
	}
	sessions := usecase.NewSessionAuthenticator(sqliteadapter.NewSessionRepository(db))
	return usecase.NewAuthenticator(verifier, sessions), nil
}

// NewWebServer wires the tenant-scoped REST API.
func NewWebServer(ctx context.Context, cfg Config, log *slog.Logger) (*http.Server, io.Closer, error) {
	codec, err := usecase.NewEventCodec()
	if err != nil {
		return nil, nil, fmt.Errorf("compile event schemas: %w", err)
	}

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	auth, err := newAuthenticator(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	bus, err := openBus(ctx, cfg, codec, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := sqliteadapter.NewStore(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)
	publisher := usecase.NewPublisher(bus, codec, outboxRepo, log, usecase.PublisherConfig{})
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, bus, log, cfg.OutboxInterval, cfg.OutboxBatchSize)
	dispatcher.Start(context.Background())

	audit := usecase.NewAuditRecorder()
	handler := httpapi.NewHandler(httpapi.Services{
		Auth:      auth,
		Projects:  usecase.NewProjectService(store, audit, publisher, log),
		Tasks:     usecase.NewTaskService(store, audit, publisher, log),
		Members:   usecase.NewMemberService(store, audit, publisher, log),
		Accounts:  usecase.NewAccountService(store, audit, publisher, log),
		Documents: usecase.NewDocumentService(store, audit, log),
		Activity:  usecase.NewActivityService(store, audit),
	}, log)

	server := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, bus, db}}, nil
}

// NewGatewayServer wires the WebSocket gateway and its bus relay.
func NewGatewayServer(ctx context.Context, cfg Config, log *slog.Logger) (*http.Server, io.Closer, error) {
	codec, err := usecase.NewEventCodec()
	if err != nil {
		return nil, nil, fmt.Errorf("compile event schemas: %w", err)
	}

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	auth, err := newAuthenticator(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	bus, err := openBus(ctx, cfg, codec, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := sqliteadapter.NewStore(db)
	registry := gateway.NewRegistry()
	publisher := usecase.NewPublisher(bus, codec, nil, log, usecase.PublisherConfig{})
	gw := gateway.NewServer(gateway.Config{
		PingInterval: cfg.GatewayPingInterval,
		PongWait:     cfg.GatewayPongWait,
		SendQueue:    cfg.GatewaySendQueue,
	}, auth, usecase.NewAccessService(store), publisher, registry, log)

	relay := gateway.NewRelay(bus, registry, log)
	if err := relay.Start(context.Background()); err != nil {
		_ = bus.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("start relay: %w", err)
	}

	shutdownGateway := closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return gw.Shutdown(ctx)
	})

	server := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	server.RegisterOnShutdown(func() {
		if err := shutdownGateway.Close(); err != nil {
			log.Warn("gateway shutdown", "error", err)
		}
	})

	return server, resourceCloser{closers: []io.Closer{relay, shutdownGateway, bus, db}}, nil
}

// Bot runs the event consumer and the periodic reconciler.
type Bot struct {
	bus        *redisbus.Bus
	consumer   *bot.Consumer
	reconciler *bot.Reconciler
	closer     io.Closer
}

// NewBot wires the bot that mirrors tenant membership into the external
// permission service.
func NewBot(ctx context.Context, cfg Config, log *slog.Logger) (*Bot, error) {
	if err := cfg.validateBot(); err != nil {
		return nil, err
	}
	roles := bot.DefaultRoleMap()
	if cfg.RoleMapPath != "" {
		loaded, err := bot.LoadRoleMap(cfg.RoleMapPath)
		if err != nil {
			return nil, err
		}
		roles = loaded
	}

	codec, err := usecase.NewEventCodec()
	if err != nil {
		return nil, fmt.Errorf("compile event schemas: %w", err)
	}
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	bus, err := openBus(ctx, cfg, codec, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := sqliteadapter.NewStore(db)
	perms := permissions.NewClient(cfg.PermissionsURL, cfg.PermissionsSecret, cfg.PermissionsTimeout)
	consumer := bot.NewConsumer(bot.Config{}, store, perms, roles, log)
	return &Bot{
		bus:        bus,
		consumer:   consumer,
		reconciler: bot.NewReconciler(store, store, consumer, cfg.ReconcileInterval, log),
		closer:     resourceCloser{closers: []io.Closer{consumer, bus, db}},
	}, nil
}

// Run subscribes the consumer and reconciles until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.consumer.Start(ctx, b.bus); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	b.reconciler.Run(ctx)
	return nil
}

func (b *Bot) Close() error {
	return b.closer.Close()
}

// Migrate applies pending migrations and returns the resulting schema version.
func Migrate(ctx context.Context, cfg Config, log *slog.Logger) (int64, error) {
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		return 0, fmt.Errorf("resolve writer sql db: %w", err)
	}
	return migrations.Version(ctx, writeSQLDB)
}

// BootstrapInput describes a new tenant and its first administrator.
type BootstrapInput struct {
	TenantID    string
	TenantName  string
	AdminUserID string
	AdminEmail  string
}

// Bootstrap creates a tenant together with an ADMIN member. Member management
// requires an existing admin, so the first one is seeded here.
func Bootstrap(ctx context.Context, cfg Config, log *slog.Logger, in BootstrapInput) (domain.Tenant, error) {
	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	tenant, err := store.CreateTenant(ctx, domain.Tenant{ID: in.TenantID, Name: in.TenantName, Active: true})
	if err != nil {
		return domain.Tenant{}, err
	}
	scope, err := store.OpenTenantScope(tenant.ID, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		_, err := tx.CreateMember(domain.Member{
			UserID: in.AdminUserID,
			Email:  in.AdminEmail,
			Role:   domain.RoleAdmin,
			Active: true,
		})
		return err
	})
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("create admin member: %w", err)
	}
	return tenant, nil
}

// IssueToken signs a bearer token for an active member using the role stored
// for them.
func IssueToken(ctx context.Context, cfg Config, log *slog.Logger, tenantID, userID string, ttl time.Duration) (string, error) {
	if err := cfg.validateBearer(); err != nil {
		return "", err
	}
	signer, err := token.NewSigner(token.Config{
		Secret:   []byte(cfg.BearerSecret),
		Issuer:   cfg.BearerIssuer,
		Audience: cfg.BearerAudience,
	})
	if err != nil {
		return "", fmt.Errorf("bearer signer: %w", err)
	}

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return "", err
	}
	defer db.Close()

	scope, err := sqliteadapter.NewStore(db).OpenTenantScope(tenantID, nil)
	if err != nil {
		return "", err
	}
	var member domain.Member
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		member, err = tx.GetMember(userID)
		return err
	})
	if err != nil {
		return "", err
	}
	if !member.Active {
		return "", errors.New("member is deactivated")
	}
	return signer.Issue(domain.Identity{UserID: member.UserID, TenantID: tenantID, Role: member.Role}, ttl)
}

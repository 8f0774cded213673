package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/quillhub/blog-auth"
	"github.com/quillhub/blog-auth/activitymap"
	"github.com/quillhub/blog-auth/config"
	"github.com/quillhub/blog-auth/metrics"
	"github.com/quillhub/blog-auth/middleware/accountstatus"
	"github.com/quillhub/blog-auth/middleware/jwtware"
	"github.com/quillhub/blog-auth/middleware/limitware"
	"github.com/quillhub/blog-auth/ratelimit"
	"github.com/quillhub/blog-auth/realtime"
)

const shutdownTimeout = 10 * time.Second

// App owns the HTTP API, the realtime listener and their shared state.
type App struct {
	cfg    *config.Config
	logger *auth.SlogLogger

	db      *bun.DB
	users   auth.Users
	metrics *metrics.Metrics
	limiter *ratelimit.Limiter

	api       *fiber.App
	gateway   *realtime.Gateway
	publisher realtime.Publisher
	realtime  *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config, logger *auth.SlogLogger) (*App, error) {
	db, err := openDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	users := auth.NewUsersRepository(db)
	if err := users.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := seedAdmin(ctx, users, cfg.Seed, logger.Named("seed")); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		users:   users,
		metrics: metrics.New(),
		limiter: ratelimit.New(ratelimit.Config{
			Window:  cfg.RateLimitWindow(),
			Limit:   cfg.RateLimit.Limit,
			MaxKeys: cfg.RateLimit.MaxKeys,
		}),
	}
	app.metrics.TrackLimiter(app.limiter.Len)

	tokens := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(logger.Named("tokens")))
	resolver := auth.NewIdentityResolver(users, tokens, logger.Named("identity"))

	app.realtime = app.newRealtime(resolver)
	app.api = app.newAPI(resolver)

	return app, nil
}

func (a *App) newAPI(resolver *auth.IdentityResolver) *fiber.App {
	api := fiber.New(fiber.Config{
		AppName:               "blogd",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(auth.StatusBody{Status: "error", Message: fe.Message})
			}
			a.logger.Error("unhandled request error", "path", c.Path(), "error", err)
			return auth.WriteError(c, err)
		},
	})

	api.Use(limitware.New(limitware.Config{
		Limiter:    a.limiter,
		Tokens:     resolver.Tokens(),
		AuthScheme: a.cfg.GetAuthScheme(),
		OnReject:   a.metrics.RateLimited,
		Logger:     a.logger.Named("ratelimit"),
	}))

	api.Use(jwtware.New(jwtware.Config{
		Resolver:   resolver,
		ContextKey: a.cfg.GetContextKey(),
		AuthScheme: a.cfg.GetAuthScheme(),
		OnReject:   a.metrics.AuthRejected,
		Logger:     a.logger.Named("jwt"),
	}))

	api.Use(accountstatus.New(accountstatus.Config{
		Resolver:   resolver,
		ContextKey: a.cfg.GetContextKey(),
		OnReject:   a.metrics.AuthRejected,
		Logger:     a.logger.Named("accountstatus"),
	}))

	auther := auth.NewAuthenticator(a.users, resolver.Tokens()).
		WithLogger(a.logger.Named("auther")).
		WithActivitySink(activitymap.NewSink(activitymap.SinkConfig{
			Logger:    a.logger.Named("activity"),
			Publisher: a.publisher,
			Options:   []activitymap.Option{activitymap.WithDefaultChannel("blogd")},
		}))

	controller := auth.NewAuthController(auther, auth.WithControllerLogger(a.logger.Named("controller")))
	auth.RegisterAuthRoutes(api, controller,
		jwtware.RequireIdentity(a.metrics.AuthRejected),
		jwtware.RequireAuthority(auth.AuthorityAdmin, a.metrics.AuthRejected),
	)

	return api
}

func (a *App) newRealtime(resolver *auth.IdentityResolver) *http.Server {
	registry := realtime.NewRegistry()
	rtLogger := a.logger.Named("realtime")

	handshake := realtime.NewHandshakeAuthenticator(resolver, rtLogger, a.metrics)
	a.gateway = realtime.NewGateway(realtime.GatewayConfig{
		OriginPatterns:    a.cfg.Realtime.AllowedOrigins,
		SendQueueSize:     a.cfg.Realtime.SendQueue,
		HeartbeatInterval: a.cfg.HeartbeatInterval(),
		FramesPerSecond:   a.cfg.Realtime.FramesPerSecond,
	}, handshake, registry, rtLogger, a.metrics)
	a.publisher = realtime.NewDispatcher(registry, rtLogger, a.metrics)

	mux := http.NewServeMux()
	mux.Handle("/ws", a.gateway)
	mux.Handle("/metrics", a.metrics.Handler())

	return &http.Server{
		Addr:              a.cfg.Realtime.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Publisher is the notification push surface for business code
func (a *App) Publisher() realtime.Publisher {
	return a.publisher
}

// Run serves both listeners until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	go a.limiter.Run(ctx, a.cfg.SweepInterval())

	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("api listening", "addr", a.cfg.HTTP.Address)
		if err := a.api.Listen(a.cfg.HTTP.Address); err != nil {
			errCh <- err
		}
	}()

	go func() {
		a.logger.Info("realtime listening", "addr", a.cfg.Realtime.Address)
		if err := a.realtime.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down", "reason", "signal")
	case runErr = <-errCh:
		a.logger.Error("listener failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.gateway.Close()
	if err := a.realtime.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("realtime shutdown failed", "error", err)
	}
	if err := a.api.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Error("api shutdown failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", "error", err)
	}

	a.logger.Info("stopped")
	return runErr
}

func openDB(cfg config.Database) (*bun.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		// a single connection keeps in-memory databases shared
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		connCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(stdlib.OpenDB(*connCfg), pgdialect.New()), nil
	}
}

func seedAdmin(ctx context.Context, users auth.Users, seed config.Seed, logger auth.Logger) error {
	if seed.AdminUsername == "" || seed.AdminPassword == "" {
		return nil
	}

	hash, err := auth.HashPassword(seed.AdminPassword)
	if err != nil {
		return err
	}

	record := &auth.User{
		Username:     seed.AdminUsername,
		PasswordHash: hash,
		Enabled:      true,
	}
	record.SetAuthorities(auth.AuthorityUser, auth.AuthorityAdmin)

	user, err := users.GetOrCreate(ctx, record)
	if err != nil {
		return err
	}

	logger.Info("admin account ready", "username", user.Username, "id", user.ID)
	return nil
}

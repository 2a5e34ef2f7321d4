// Package server builds the edge service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/api"
	"github.com/jalaljaleh/portfolio-edge/internal/background"
	"github.com/jalaljaleh/portfolio-edge/internal/cache"
	bigcachecache "github.com/jalaljaleh/portfolio-edge/internal/cache/bigcache"
	memorycache "github.com/jalaljaleh/portfolio-edge/internal/cache/memory"
	pgcache "github.com/jalaljaleh/portfolio-edge/internal/cache/postgres"
	rediscache "github.com/jalaljaleh/portfolio-edge/internal/cache/redis"
	sqlitecache "github.com/jalaljaleh/portfolio-edge/internal/cache/sqlite"
	"github.com/jalaljaleh/portfolio-edge/internal/clock"
	"github.com/jalaljaleh/portfolio-edge/internal/config"
	"github.com/jalaljaleh/portfolio-edge/internal/hash/sha256"
	"github.com/jalaljaleh/portfolio-edge/internal/id/uuid"
	"github.com/jalaljaleh/portfolio-edge/internal/logging"
	"github.com/jalaljaleh/portfolio-edge/internal/notify"
	memorypublisher "github.com/jalaljaleh/portfolio-edge/internal/publisher/memory"
	gcppublisher "github.com/jalaljaleh/portfolio-edge/internal/publisher/pubsub"
	"github.com/jalaljaleh/portfolio-edge/internal/relay"
	memoryrelay "github.com/jalaljaleh/portfolio-edge/internal/relay/memory"
	"github.com/jalaljaleh/portfolio-edge/internal/relay/ratelimit"
	"github.com/jalaljaleh/portfolio-edge/internal/relay/telegram"
	"github.com/jalaljaleh/portfolio-edge/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	runner         *background.Runner
	cache          cache.Cache
	relay          relay.Sender
	publisher      notify.Publisher
	pubsubClient   *pubsub.Client
	gcpPublisher   *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
	stopSweeper    context.CancelFunc
	sweeperDone    chan struct{}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("notify_paths", cfg.Notify.Paths),
		zap.String("cache", cfg.Cache.Provider),
		zap.String("relay", cfg.Relay.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName, cfg.Tracing.SampleRatio)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	var err error
	if app.cache, err = setupCache(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	app.relay = setupRelay(app)
	if app.publisher, err = setupPublisher(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.runner = background.NewRunner(cfg.Notify.BackgroundTimeout, logger.Named("background"))

	deps := notify.Dependencies{
		Relay:      app.relay,
		Background: app.runner,
		Publisher:  app.publisher,
		Hasher:     sha256.New(cfg.Notify.VisitorHashSalt),
		IDs:        uuid.New(),
		Clock:      clock.System{},
	}
	if _, disabled := app.cache.(cache.None); !disabled {
		deps.Cache = app.cache
	}
	handler, err := notify.NewHandler(notify.Config{
		SharedToken:     cfg.Notify.SharedToken,
		Destination:     destination(cfg),
		TTL:             cfg.Notify.TTL,
		LookupTimeout:   cfg.Notify.LookupTimeout,
		MaxBodyBytes:    cfg.Notify.MaxBodyBytes,
		TrustRemoteAddr: cfg.Notify.TrustRemoteAddr,
		Topic:           cfg.PubSub.TopicName,
	}, deps, logger.Named("notify"))
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("notify handler init failed: %w", err)
	}
	if cfg.Notify.SharedToken == "" {
		logger.Warn("notify.shared_token is empty; the notify endpoint is open to any caller")
	}

	app.apiServer, err = api.NewServer(api.Dependencies{
		Notify:    handler,
		Commands:  devCommands(app),
		Readiness: readinessChecks(app),
	}, api.Options{
		NotifyPaths:    cfg.Notify.Paths,
		RequestTimeout: cfg.Server.RequestTimeout,
		RedirectURL:    cfg.Site.RedirectURL,
		DevToken:       cfg.Dev.Token,
	}, logger.Named("api"))
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("api init failed: %w", err)
	}

	app.startSweeper(cfg.Cache.SweepInterval)
	return app, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close drains background work, then releases every client.
func (a *App) Close(ctx context.Context) error {
	if a.runner != nil {
		if err := a.runner.Wait(ctx); err != nil {
			a.logger.Warn("background tasks still running at shutdown", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.runner != nil {
		a.runner.Close()
	}
	if a.stopSweeper != nil {
		a.stopSweeper()
		<-a.sweeperDone
		a.stopSweeper = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}

// destination is the relay chat. Log mode needs no real chat.
func destination(cfg *config.Config) string {
	if cfg.Relay.Provider == "log" && cfg.Telegram.OwnerChatID == "" {
		return "log"
	}
	return cfg.Telegram.OwnerChatID
}

func setupCache(ctx context.Context, app *App) (cache.Cache, error) {
	cfg := app.cfg.Cache
	logger := app.logger.Named("cache")
	switch cfg.Provider {
	case "none":
		logger.Warn("dedup cache disabled; every visit notifies")
		return cache.None{}, nil
	case "bigcache":
		c, err := bigcachecache.New(ctx, bigcachecache.Config{
			LifeWindow:         app.cfg.Notify.TTL,
			Shards:             cfg.BigCache.Shards,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})
		if err != nil {
			return nil, fmt.Errorf("bigcache init failed: %w", err)
		}
		logger.Info("using bigcache dedup cache", zap.Int("shards", cfg.BigCache.Shards))
		return c, nil
	case "redis":
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			OpTimeout: cfg.Redis.OpTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		logger.Info("using redis dedup cache", zap.String("addr", cfg.Redis.Addr))
		return c, nil
	case "postgres":
		c, err := pgcache.New(ctx, pgcache.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		logger.Info("using postgres dedup cache", zap.String("table", cfg.Postgres.Table))
		return c, nil
	case "sqlite":
		c, err := sqlitecache.Open(ctx, sqlitecache.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite cache init failed: %w", err)
		}
		logger.Info("using sqlite dedup cache", zap.String("path", cfg.SQLite.Path))
		return c, nil
	default:
		logger.Info("using in-memory dedup cache")
		return memorycache.New(nil), nil
	}
}

func setupRelay(app *App) relay.Sender {
	logger := app.logger.Named("relay")
	if app.cfg.Relay.Provider == "log" {
		logger.Info("relay in log mode; messages are logged, not sent")
		return memoryrelay.New(logger)
	}

	tg := app.cfg.Telegram
	if tg.OwnerChatID == "" {
		logger.Warn("telegram.owner_chat_id is empty; notifications will fail and be logged")
	}
	sender, err := telegram.New(telegram.Config{
		Token:   tg.BotToken,
		APIURL:  tg.APIURL,
		Timeout: tg.Timeout,
	})
	if err != nil {
		logger.Warn("telegram relay unavailable; notifications will be dropped", zap.Error(err))
		return relay.Unconfigured{}
	}
	logger.Info("telegram relay ready",
		zap.Float64("rate_limit_rps", tg.RateLimitRPS),
		zap.Int("rate_limit_burst", tg.RateLimitBurst),
	)
	return ratelimit.New(sender, ratelimit.Config{RPS: tg.RateLimitRPS, Burst: tg.RateLimitBurst})
}

func setupPublisher(ctx context.Context, app *App) (notify.Publisher, error) {
	switch app.cfg.Publisher.Provider {
	case "pubsub":
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.gcpPublisher = gcppublisher.New(app.pubsubClient)
		app.logger.Info(
			"Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
		return app.gcpPublisher, nil
	case "memory":
		app.logger.Info("visit events kept in memory", zap.Int("capacity", app.cfg.Publisher.Capacity))
		return memorypublisher.New(app.cfg.Publisher.Capacity, app.logger.Named("publisher")), nil
	default:
		return nil, nil
	}
}

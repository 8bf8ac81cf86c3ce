// Package app assembles clinic-core's components from configuration. The
// server and the clinicctl tool share it so both see the same stores.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"clinic-core/common/database"
	mqttcommon "clinic-core/common/mqtt"
	rediscommon "clinic-core/common/redis"
	"clinic-core/internal/auth"
	"clinic-core/internal/config"
	httpapi "clinic-core/internal/http"
	"clinic-core/internal/metrics"
	"clinic-core/internal/repository"
	"clinic-core/internal/service"
	"clinic-core/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the wired components. Optional backends are nil when disabled
// or unreachable.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sql.DB
	Redis *redis.Client
	MQTT  *mqttcommon.Client

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Directory   repository.TenantDirectory
	TenantCache *repository.CachedTenantDirectory // nil without Redis
	Activator repository.PartitionActivator
	Catalogs  repository.CatalogStore
	LogReader repository.AccessLogReader

	Resolver      *service.TenantResolver
	CatalogCache  *service.CatalogCache
	AccessLogger  *service.AccessLogger
	Drainer       *service.AccessLogDrainer
	Engine        *service.PermissionEngine
	CatalogAdmin  *service.CatalogService
	Exporter      *service.AccessLogExporter
	Authenticator auth.Authenticator
}

// New connects the configured backends and wires every component. A
// database that cannot be reached falls back to seeded in-memory stores,
// as does an unreachable Redis to running without it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	authn, err := newAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	a.Authenticator = authn

	if cfg.DBEnabled {
		if db, err := database.NewPostgresDB(&cfg.Database); err == nil {
			a.DB = db
			logger.Info("DB enabled for clinic-core", zap.String("database", cfg.Database.Database))
		} else {
			logger.Warn("DB enabled but connection failed, falling back to in-memory stores", zap.Error(err))
		}
	}

	var direct repository.AccessLogSink
	if a.DB != nil {
		a.Directory = repository.NewPostgresTenantDirectory(a.DB)
		a.Activator = repository.NewPostgresPartitionActivator(a.DB, logger)
		a.Catalogs = repository.NewPostgresCatalogStore()
		logs := repository.NewPostgresAccessLogStore(a.DB)
		direct, a.LogReader = logs, logs
	} else {
		dir := repository.NewMemoryTenantDirectory()
		catalogs := repository.NewMemoryCatalogStore()
		if err := repository.SeedDemo(dir, catalogs); err != nil {
			return nil, fmt.Errorf("seed in-memory stores: %w", err)
		}
		logs := repository.NewMemoryAccessLogStore()
		a.Directory, a.Catalogs = dir, catalogs
		a.Activator = repository.NoopPartitionActivator{}
		direct, a.LogReader = logs, logs
	}

	if cfg.RedisEnabled {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rediscommon.Ping(pingCtx, client)
		cancel()
		if err != nil {
			logger.Warn("Redis enabled but unreachable, continuing without it", zap.Error(err))
			_ = client.Close()
		} else {
			a.Redis = client
			a.TenantCache = repository.NewCachedTenantDirectory(a.Directory, store.NewRedisKV(client), cfg.Tenant.CacheTTL, logger)
			a.Directory = a.TenantCache
		}
	}

	sink := direct
	if cfg.AccessLog.Mode == config.AccessLogStream {
		if a.Redis == nil {
			logger.Warn("access log stream mode needs Redis, writing directly")
		} else {
			sink = repository.NewRedisStreamAccessLogSink(a.Redis, cfg.AccessLog.Stream)
			a.Drainer = service.NewAccessLogDrainer(a.Redis, cfg.AccessLog.Stream, cfg.AccessLog.Group,
				cfg.AccessLog.Consumer, direct, logger)
		}
	}
	a.AccessLogger = service.NewAccessLogger(sink, cfg.AccessLog.Buffer, logger, a.Metrics)

	a.Resolver = service.NewTenantResolver(a.Directory, cfg.Tenant.Default, logger, a.Metrics)
	a.CatalogCache = service.NewCatalogCache(a.Catalogs, cfg.Permission.CatalogCacheTTL, logger, a.Metrics)
	a.Engine = service.NewPermissionEngine(a.CatalogCache, a.AccessLogger, cfg.Permission.FailOpen, logger, a.Metrics)
	a.Exporter = service.NewAccessLogExporter(a.LogReader)

	var invalidator service.CatalogInvalidator
	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			logger.Warn("MQTT enabled but connection failed, catalog changes stay local", zap.Error(err))
		} else {
			a.MQTT = client
			bus := service.NewInvalidationBus(client, cfg.MQTT.Topic, cfg.MQTT.QoS, cfg.MQTT.ClientID, a.CatalogCache, logger)
			if err := bus.Listen(); err != nil {
				logger.Warn("failed to subscribe to catalog invalidations", zap.Error(err))
			}
			invalidator = bus
		}
	}
	a.CatalogAdmin = service.NewCatalogService(a.Catalogs, a.CatalogCache, invalidator, logger)

	if !cfg.Permission.FailOpen {
		logger.Info("permission engine fails closed on unregistered routes")
	} else {
		logger.Warn("permission engine fails open: unregistered routes are allowed")
	}
	return a, nil
}

func newAuthenticator(cfg config.AuthConfig, logger *zap.Logger) (auth.Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeHeader, "":
		return auth.HeaderAuthenticator{}, nil
	case config.AuthModeJWT:
		return auth.NewJWTAuthenticator(cfg.JWTSecret)
	case config.AuthModeRemote:
		return auth.NewRemoteAuthenticator(cfg.ServiceURL, cfg.ServiceTimeout, logger), nil
	}
	return nil, fmt.Errorf("unknown AUTH_MODE %q (must be header, jwt or remote)", cfg.Mode)
}

// InvalidateTenant drops every cached lookup of tenant slug: the shared
// Redis entries for its slug and hostnames, and this process's catalog
// snapshot. Call it after editing the tenant or its domains in the
// database so other processes stop serving the old record.
func (a *App) InvalidateTenant(ctx context.Context, slug string) error {
	a.CatalogCache.Invalidate(slug)
	if a.TenantCache == nil {
		return nil
	}
	domains, err := a.Directory.ListDomains(ctx, slug)
	if err != nil {
		return fmt.Errorf("list domains of %q: %w", slug, err)
	}
	hosts := make([]string, 0, len(domains))
	for _, d := range domains {
		hosts = append(hosts, d.Hostname)
	}
	if err := a.TenantCache.Invalidate(ctx, slug, hosts...); err != nil {
		return fmt.Errorf("invalidate tenant cache for %q: %w", slug, err)
	}
	a.Logger.Info("tenant cache invalidated", zap.String("tenant", slug), zap.Strings("hostnames", hosts))
	return nil
}

// Handler builds the HTTP router.
func (a *App) Handler() http.Handler {
	pipeline := httpapi.NewPipeline(a.Resolver, a.Activator, a.Authenticator, a.Engine, a.Logger)
	router := httpapi.NewRouter(a.Logger)

	var pinger httpapi.Pinger
	if a.DB != nil {
		pinger = a.DB
	}
	router.RegisterPlatformRoutes(httpapi.NewPlatformHandler(a.Directory, pinger, a.Logger),
		promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	router.RegisterTenantRoutes(pipeline,
		httpapi.NewTenantHandler(a.Engine, a.CatalogAdmin, a.Exporter, a.Logger))
	return router
}

// Start launches background workers. The drainer stops with ctx.
func (a *App) Start(ctx context.Context) {
	a.AccessLogger.Start()
	if a.Drainer == nil {
		return
	}
	go func() {
		if err := a.Drainer.Run(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error("access log drainer stopped", zap.Error(err))
		}
	}()
}

// Close flushes the access log and releases every backend.
func (a *App) Close(ctx context.Context) {
	if err := a.AccessLogger.Close(ctx); err != nil {
		a.Logger.Warn("access log not fully flushed", zap.Error(err))
	}
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
	if a.Redis != nil {
		_ = rediscommon.Close(a.Redis)
	}
	if a.DB != nil {
		_ = database.Close(a.DB)
	}
}

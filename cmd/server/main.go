package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/browser"
	"github.com/crosslist/backend/internal/infrastructure/cache"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/crosslist/backend/internal/infrastructure/ecommerce"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/crosslist/backend/internal/infrastructure/persistence"
	"github.com/crosslist/backend/internal/infrastructure/scheduler"
	"github.com/crosslist/backend/internal/infrastructure/storage"
	"github.com/crosslist/backend/internal/infrastructure/telemetry"
	"github.com/crosslist/backend/internal/interfaces/http/handler"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/crosslist/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logCfg := logger.ConfigForEnv(cfg.App.Env)
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	logCfg.Sampling = cfg.Log.Sampling
	logCfg.Service = cfg.App.Name
	logCfg.Version = version
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OpenTelemetry: traces, metrics and (optionally) logs
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.NewConfig(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.NewMetricsConfig(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.NewLogsConfig(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if lp.IsEnabled() {
		log = lp.Bridge(log, zapcore.InfoLevel)
	}
	defer shutdownTelemetry(log, tp, mp, lp)

	log.Info("Starting crosslist backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(ctx, &cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing {
		dbTracing := telemetry.DefaultDBTracingConfig()
		dbTracing.Enabled = true
		if cfg.Database.Driver == "sqlite" {
			dbTracing.DBSystem = "sqlite"
		}
		if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Repositories
	itemRepo := persistence.NewGormItemRepository(db.DB)
	listingRepo := persistence.NewGormListingRepository(db.DB)
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	inventoryStore := persistence.NewGormInventoryStore(db.DB)

	// Object storage for item photos
	objects := newObjectStorage(cfg, log)
	var images *storage.ImageResolver
	if objects != nil {
		images = storage.NewImageResolver(objects,
			storage.WithImageURLTTL(cfg.Storage.PresignExpiration),
			storage.WithImageLogger(log),
		)
	}

	// Marketplace adapters
	var adapters []marketplace.Adapter
	var oauth marketplaceapp.EbayOAuth
	if cfg.Ebay.Enabled {
		ebayCfg := ecommerce.NewEbayConfig(cfg.Ebay)
		opts := []ecommerce.EbayAdapterOption{ecommerce.WithEbayLogger(log)}
		if images != nil {
			opts = append(opts, ecommerce.WithEbayImageSource(images))
		}
		ebay, err := ecommerce.NewEbayAdapter(ebayCfg, accountRepo, opts...)
		if err != nil {
			log.Fatal("Failed to configure eBay adapter", zap.Error(err))
		}
		adapters = append(adapters, ebay)
		oauth = ecommerce.NewEbayOAuthClient(ebayCfg, &http.Client{Timeout: time.Duration(ebayCfg.TimeoutSeconds) * time.Second})
		log.Info("eBay adapter enabled", zap.String("environment", ebayCfg.Environment))
	}

	var browserPool *browser.Pool
	if cfg.Poshmark.Enabled {
		chrome := browser.NewChromedp(browser.NewChromedpConfig(cfg.Browser, log))
		browserPool, err = browser.NewPool(cfg.Browser.PoolSize, chrome.NewSession,
			browser.WithPoolLogger(log),
			browser.WithShutdown(chrome.Close),
		)
		if err != nil {
			log.Fatal("Failed to create browser pool", zap.Error(err))
		}
		defer func() {
			if err := browserPool.Close(); err != nil {
				log.Error("Error closing browser pool", zap.Error(err))
			}
		}()

		opts := []ecommerce.PoshmarkAdapterOption{ecommerce.WithPoshmarkLogger(log)}
		if images != nil {
			opts = append(opts, ecommerce.WithPoshmarkImageSource(images))
		}
		if objects != nil {
			opts = append(opts, ecommerce.WithPoshmarkArtifacts(objects))
		}
		poshmark, err := ecommerce.NewPoshmarkAdapter(ecommerce.NewPoshmarkConfig(cfg.Poshmark), browserPool, accountRepo, opts...)
		if err != nil {
			log.Fatal("Failed to configure Poshmark adapter", zap.Error(err))
		}
		adapters = append(adapters, poshmark)
		log.Info("Poshmark adapter enabled", zap.Int("browser_pool_size", browserPool.Capacity()))
	}
	registry := marketplace.NewRegistry(adapters...)
	if len(adapters) == 0 {
		log.Warn("No marketplace adapters enabled; sync requests will be rejected")
	}

	// Pair locking
	lockerFactory := cache.NewPairLockerFactory(cfg.Sync, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	)
	locker, closeLocker, err := lockerFactory.CreateLocker()
	if err != nil {
		log.Fatal("Failed to create pair locker", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing pair locker", zap.Error(err))
		}
	}()

	// Sync orchestration
	syncMetrics, err := telemetry.NewSyncMetrics(mp.Meter("crosslist/sync"))
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	orchestrator := marketplaceapp.NewOrchestrator(inventoryStore, registry,
		marketplaceapp.WithPairLocker(locker),
		marketplaceapp.WithRetryPolicy(marketplaceapp.RetryPolicy{
			Attempts:  cfg.Sync.RetryAttempts,
			BaseDelay: cfg.Sync.RetryBaseDelay,
			MaxDelay:  cfg.Sync.RetryMaxDelay,
		}),
		marketplaceapp.WithMaxParallel(cfg.Sync.MaxParallel),
		marketplaceapp.WithSyncRecorder(syncMetrics),
		marketplaceapp.WithTracerProvider(tp.TracerProvider()),
		marketplaceapp.WithOrchestratorLogger(log),
	)

	workers, err := scheduler.NewSyncWorkerPool(scheduler.NewSyncWorkerPoolConfig(cfg.Sync), orchestrator, log)
	if err != nil {
		log.Fatal("Failed to create sync worker pool", zap.Error(err))
	}
	if err := workers.Start(ctx); err != nil {
		log.Fatal("Failed to start sync worker pool", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := workers.Stop(stopCtx); err != nil {
			log.Error("Error stopping sync worker pool", zap.Error(err))
		}
	}()

	runtimeGauges := []telemetry.GaugeFunc{{
		Name:        "crosslist.sync.queue.length",
		Description: "Sync jobs waiting for a worker",
		Unit:        "{job}",
		Observe:     func() int64 { return int64(workers.QueueLength()) },
	}, {
		Name:        "crosslist.db.connections.in_use",
		Description: "Database connections currently in use",
		Unit:        "{connection}",
		Observe:     func() int64 { return int64(db.Stats().InUse) },
	}}
	if browserPool != nil {
		runtimeGauges = append(runtimeGauges,
			telemetry.GaugeFunc{
				Name:        "crosslist.browser.sessions.active",
				Description: "Browser sessions currently checked out",
				Unit:        "{session}",
				Observe:     func() int64 { return int64(browserPool.Active()) },
			},
			telemetry.GaugeFunc{
				Name:        "crosslist.browser.sessions.capacity",
				Description: "Browser session pool size",
				Unit:        "{session}",
				Observe:     func() int64 { return int64(browserPool.Capacity()) },
			})
	}
	if err := telemetry.ObserveGauges(mp.Meter("crosslist/runtime"), runtimeGauges...); err != nil {
		log.Warn("Failed to register runtime gauges", zap.Error(err))
	}

	if cfg.Sync.ReconcileInterval > 0 {
		reconciler := scheduler.NewReconcileTrigger(scheduler.NewReconcileTriggerConfig(cfg.Sync), listingRepo, workers, log)
		if err := reconciler.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation", zap.Error(err))
		}
		defer reconciler.Stop()
		log.Info("Background reconciliation started",
			zap.Duration("interval", cfg.Sync.ReconcileInterval),
			zap.Duration("stale_after", cfg.Sync.StaleAfter),
		)
	}

	// Application services
	var itemStorage marketplaceapp.ObjectStorage
	if objects != nil {
		itemStorage = objects
	}
	itemService := marketplaceapp.NewItemService(itemRepo, inventoryStore, itemStorage, log)
	accountService := marketplaceapp.NewAccountService(accountRepo, oauth, registry, log)

	// HTTP handlers
	checks := []handler.HealthCheck{{
		Name:  "database",
		Check: db.Ping,
	}}
	if redisLocker, ok := locker.(*cache.RedisPairLocker); ok {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisLocker.GetClient().Ping(ctx).Err() },
		})
	}
	handlers := router.APIHandlers{
		System:       handler.NewSystemHandler(cfg.App.Name, version, registry, checks...),
		Items:        handler.NewItemHandler(itemService),
		Sync:         handler.NewSyncHandler(orchestrator, workers, registry),
		Marketplaces: handler.NewMarketplaceHandler(accountService),
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order: request id first so every later layer can tag with it,
	// tracing before logging so log lines carry the trace id
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.RequestID())
	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.ServiceName = cfg.Telemetry.ServiceName
	tracingCfg.Enabled = tp.IsEnabled()
	engine.Use(middleware.Tracing(tracingCfg))
	engine.Use(middleware.SpanAttributes())
	engine.Use(logger.Recovery(log, middleware.PanicResponse))
	engine.Use(logger.GinMiddleware(log, middleware.RequestIDKey))
	engine.Use(middleware.HTTPMetrics(mp, tracingCfg.SkipPaths...))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize,
		middleware.WithContentTypeLimit("application/json", cfg.HTTP.MaxJSONBodySize)))

	var syncLimiter *middleware.RateLimiter
	if cfg.HTTP.SyncRateLimit > 0 {
		syncLimiter = middleware.NewRateLimiter(cfg.HTTP.SyncRateLimit, cfg.HTTP.SyncRateBurst, 10*time.Minute)
		log.Info("Sync rate limiting enabled",
			zap.Float64("per_second", cfg.HTTP.SyncRateLimit),
			zap.Int("burst", cfg.HTTP.SyncRateBurst),
		)
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterAPI(r, handlers, router.APIOptions{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		UploadLimit:    marketplaceapp.MaxImageSize + 1<<20,
		SyncLimiter:    syncLimiter,
	})
	r.Setup()
	for _, route := range r.Routes() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// objectStore is what both the item service and the adapters need from storage
type objectStore interface {
	marketplaceapp.ObjectStorage
	storage.ObjectReader
}

// newObjectStorage returns S3 storage when configured. Outside production an
// in-process store stands in so photo uploads work without S3. Nil means
// image endpoints answer ERR_NOT_CONFIGURED.
func newObjectStorage(cfg *config.Config, log *zap.Logger) objectStore {
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
		)
		if err != nil {
			log.Fatal("Failed to configure object storage", zap.Error(err))
		}
		log.Info("S3 object storage enabled", zap.String("bucket", cfg.Storage.Bucket))
		return s3
	}
	if cfg.IsProduction() {
		log.Warn("Object storage disabled; image upload is unavailable")
		return nil
	}
	log.Info("Using in-memory object storage")
	return storage.NewMemoryObjectStorage("")
}

func shutdownTelemetry(log *zap.Logger, tp *telemetry.TracerProvider, mp *telemetry.MeterProvider, lp *telemetry.LoggerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := lp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down log exporter", zap.Error(err))
	}
}

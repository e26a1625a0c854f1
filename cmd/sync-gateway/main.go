// Sync Gateway - External-Collaborator Interface
// ==============================================
// Exposes the core's ingestion-control and query surface over HTTP for the
// API layer. Business CRUD, authentication, and the web frontend live
// upstream; this binary only binds the core's contract.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/gateway"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/crm"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/erp"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/local"
	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/manager"
	"github.com/kilang-desa-murni/salesintel/internal/lake/raw"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/internal/sync/worker"
	"github.com/kilang-desa-murni/salesintel/pkg/config"
	"github.com/kilang-desa-murni/salesintel/pkg/database"
	"github.com/kilang-desa-murni/salesintel/pkg/events"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/middleware"
	"github.com/kilang-desa-murni/salesintel/pkg/tracer"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.App.Name = "sync-gateway"

	log := logger.New(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Caller: cfg.Logger.Caller,
	})
	log = log.With().Service(cfg.App.Name).Logger()
	logger.SetGlobal(log)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting sync gateway")

	tr, err := tracer.New(&cfg.Tracer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer tr.Close(context.Background())

	mongodb, err := database.NewMongoDB(&cfg.MongoDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongodb.Close(context.Background())

	redis, err := database.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redis.Close()

	rabbit, err := events.NewRabbitMQEventBus(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}

	st := store.New(mongodb, log)
	if err := st.EnsureAllIndexes(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}
	eventBus := events.NewOutboxPublisher(rabbit, components.NewMongoOutbox(st), time.Minute, log)
	defer eventBus.Close()
	rawZone := raw.New(st, log)
	canonicalZone := canonical.New(st, log)
	servingZone := serving.New(st, redis, cfg.Lake.ServingCacheTTL, log)
	registry := mapping.New(st)
	syncLogger := components.NewMongoSyncLogger(st, eventBus, log)
	mgr := manager.New(st, rawZone, canonicalZone, servingZone, log)
	localWriter := local.NewWriter(canonicalZone, servingZone, syncLogger, cfg.Lake.IDCacheSize, log)

	// The gateway shares the worker's queue collections; it enqueues and
	// inspects jobs but does not execute them — the sync-worker binary does.
	w := worker.New(st, cfg.Sync, log)
	deps := erp.Deps{
		RawZone: rawZone, CanonicalZone: canonicalZone, ServingZone: servingZone,
		Registry: registry, SyncLogger: syncLogger,
		Sync: cfg.Sync, Lake: cfg.Lake, Tracer: tr, Log: log,
	}
	if cfg.ERP.Enabled {
		w.RegisterPipeline(erp.NewPipeline(erp.Config{
			URL: cfg.ERP.URL, Database: cfg.ERP.Database,
			Username: cfg.ERP.Username, APIKey: cfg.ERP.APIKey,
			Timeout: cfg.ERP.Timeout,
		}, deps))
	}
	if cfg.CRM.Enabled {
		w.RegisterPipeline(crm.NewPipeline(crm.Config{
			InstanceURL: cfg.CRM.InstanceURL, AccessToken: cfg.CRM.AccessToken,
			APIVersion: cfg.CRM.APIVersion, Timeout: cfg.CRM.Timeout,
		}, crm.Deps(deps)))
	}

	handler := gateway.NewHandler(mgr, w, registry, localWriter, syncLogger, cfg.Lake.SyncLogRetention, log)

	// Ingestion-control endpoints are rate limited per caller, backed by the
	// shared Redis so the limit holds across gateway replicas.
	limitCfg := middleware.RateLimitConfig{
		Requests: cfg.Server.RateLimitRequests,
		Window:   cfg.Server.RateLimitWindow,
	}
	rateLimiter := middleware.NewRedisRateLimiter(redis, limitCfg)
	router := gateway.NewRouter(handler, rateLimiter, limitCfg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Sync gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down sync gateway")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

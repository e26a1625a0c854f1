// Sync Worker - Background Sync Job Execution
// ============================================
// Runs the queue task and the scheduler task that drive the sync pipelines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/integrations/crm"
	"github.com/kilang-desa-murni/salesintel/internal/integrations/erp"
	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
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
	cfg.App.Name = "sync-worker"

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
		Msg("Starting sync worker")

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

	// Data-lake graph.
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

	// Worker with one pipeline per enabled integration.
	w := worker.New(st, cfg.Sync, log)
	if cfg.ERP.Enabled {
		w.RegisterPipeline(erp.NewPipeline(erp.Config{
			URL: cfg.ERP.URL, Database: cfg.ERP.Database,
			Username: cfg.ERP.Username, APIKey: cfg.ERP.APIKey,
			Timeout: cfg.ERP.Timeout,
		}, erp.Deps{
			RawZone: rawZone, CanonicalZone: canonicalZone, ServingZone: servingZone,
			Registry: registry, SyncLogger: syncLogger,
			Sync: cfg.Sync, Lake: cfg.Lake, Tracer: tr, Log: log,
		}))
		log.Info().Msg("ERP pipeline registered")
	}
	if cfg.CRM.Enabled {
		w.RegisterPipeline(crm.NewPipeline(crm.Config{
			InstanceURL: cfg.CRM.InstanceURL, AccessToken: cfg.CRM.AccessToken,
			APIVersion: cfg.CRM.APIVersion, Timeout: cfg.CRM.Timeout,
		}, crm.Deps{
			RawZone: rawZone, CanonicalZone: canonicalZone, ServingZone: servingZone,
			Registry: registry, SyncLogger: syncLogger,
			Sync: cfg.Sync, Lake: cfg.Lake, Tracer: tr, Log: log,
		}))
		log.Info().Msg("CRM pipeline registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutdown signal received, finishing current work")
		w.Stop()
		cancel()
	}()

	if err := w.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Sync worker exited with error")
	}
}

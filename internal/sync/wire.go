//go:build wireinject
// +build wireinject

// Package sync provides wire dependency injection for the sync engine: the
// shared sync logger and the worker. Pipelines are registered onto the
// worker per configured integration by the entrypoint.
package sync

import (
	"github.com/google/wire"

	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/internal/sync/worker"
	"github.com/kilang-desa-murni/salesintel/pkg/config"
	"github.com/kilang-desa-murni/salesintel/pkg/events"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// ProviderSet is the wire provider set for the sync engine.
var ProviderSet = wire.NewSet(
	ProvideSyncLogger,
	ProvideWorker,
)

// ProvideSyncLogger provides the Mongo-backed sync logger with event-bus
// fan-out.
func ProvideSyncLogger(s *store.Store, bus events.Publisher, log *logger.Logger) components.SyncLogger {
	return components.NewMongoSyncLogger(s, bus, log)
}

// ProvideWorker provides the sync worker.
func ProvideWorker(s *store.Store, cfg config.SyncConfig, log *logger.Logger) *worker.Worker {
	return worker.New(s, cfg, log)
}

// Engine groups the constructed sync-engine graph.
type Engine struct {
	Worker     *worker.Worker
	SyncLogger components.SyncLogger
}

// InitializeEngine builds the sync-engine graph.
func InitializeEngine(s *store.Store, bus events.Publisher, cfg config.SyncConfig, log *logger.Logger) (*Engine, error) {
	wire.Build(ProviderSet, wire.Struct(new(Engine), "*"))
	return nil, nil
}

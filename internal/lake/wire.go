//go:build wireinject
// +build wireinject

// Package lake provides wire dependency injection for the data-lake graph:
// the store, the three zones, the field-mapping registry, and the manager.
package lake

import (
	"github.com/google/wire"

	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/manager"
	"github.com/kilang-desa-murni/salesintel/internal/lake/raw"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
	"github.com/kilang-desa-murni/salesintel/pkg/config"
	"github.com/kilang-desa-murni/salesintel/pkg/database"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// ProviderSet is the wire provider set for the data lake.
var ProviderSet = wire.NewSet(
	ProvideStore,
	ProvideRawZone,
	ProvideCanonicalZone,
	ProvideServingZone,
	ProvideRegistry,
	ProvideManager,
)

// ProvideStore provides the store abstraction over the shared MongoDB
// connection.
func ProvideStore(mongo *database.MongoDB, log *logger.Logger) *store.Store {
	return store.New(mongo, log)
}

// ProvideRawZone provides the Raw Zone.
func ProvideRawZone(s *store.Store, log *logger.Logger) *raw.Zone {
	return raw.New(s, log)
}

// ProvideCanonicalZone provides the Canonical Zone.
func ProvideCanonicalZone(s *store.Store, log *logger.Logger) *canonical.Zone {
	return canonical.New(s, log)
}

// ProvideServingZone provides the Serving Zone with its Redis read cache.
func ProvideServingZone(s *store.Store, redis *database.RedisClient, cfg config.LakeConfig, log *logger.Logger) *serving.Zone {
	return serving.New(s, redis, cfg.ServingCacheTTL, log)
}

// ProvideRegistry provides the field-mapping registry.
func ProvideRegistry(s *store.Store) *mapping.Registry {
	return mapping.New(s)
}

// ProvideManager provides the Data-Lake Manager façade.
func ProvideManager(s *store.Store, r *raw.Zone, c *canonical.Zone, sv *serving.Zone, log *logger.Logger) *manager.Manager {
	return manager.New(s, r, c, sv, log)
}

// Lake groups the constructed data-lake graph.
type Lake struct {
	Store     *store.Store
	Raw       *raw.Zone
	Canonical *canonical.Zone
	Serving   *serving.Zone
	Registry  *mapping.Registry
	Manager   *manager.Manager
}

// InitializeLake builds the full data-lake graph.
func InitializeLake(mongo *database.MongoDB, redis *database.RedisClient, cfg config.LakeConfig, log *logger.Logger) (*Lake, error) {
	wire.Build(ProviderSet, wire.Struct(new(Lake), "*"))
	return nil, nil
}

package erp

import (
	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/raw"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/internal/sync/pipeline"
	"github.com/kilang-desa-murni/salesintel/pkg/config"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/tracer"
)

// Deps bundles the shared infrastructure a pipeline factory needs.
type Deps struct {
	RawZone       *raw.Zone
	CanonicalZone *canonical.Zone
	ServingZone   *serving.Zone
	Registry      *mapping.Registry
	SyncLogger    components.SyncLogger
	Sync          config.SyncConfig
	Lake          config.LakeConfig
	Tracer        *tracer.Tracer
	Log           *logger.Logger
}

// NewPipeline assembles the configured sync pipeline for the ERP source:
// the breaker-wrapped connector, per-entity mappers, and the shared
// validator/normalizer/loader.
func NewPipeline(cfg Config, deps Deps) *pipeline.Pipeline {
	connector := components.NewBreakerConnector(NewConnector(cfg, deps.Log), deps.Sync.CircuitBreakerTrips, deps.Sync.SourceRateLimit, deps.Log)

	mappers := make(map[domain.EntityType]components.Mapper)
	for _, t := range []domain.EntityType{
		domain.EntityContact, domain.EntityAccount, domain.EntityOpportunity,
		domain.EntityActivity, domain.EntityUser,
	} {
		mappers[t] = NewMapper(t, deps.Registry)
	}

	return pipeline.New(pipeline.Config{
		Source:     SourceName,
		Connector:  connector,
		Mappers:    mappers,
		Validator:  components.NewEntityValidator(),
		Normalizer: components.NewEntityNormalizer(SourceName, deps.CanonicalZone, deps.Lake.IDCacheSize, deps.Log),
		Loader:     components.NewZoneLoader(deps.RawZone, deps.CanonicalZone, deps.ServingZone, deps.Log),
		Logger:     deps.SyncLogger,
		Registry:   deps.Registry,
		RawZone:    deps.RawZone,
		BatchSize:  deps.Sync.BatchSize,
		Tracer:     deps.Tracer,
		Log:        deps.Log,
	})
}

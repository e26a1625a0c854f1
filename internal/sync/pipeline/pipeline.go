// Package pipeline implements the sync pipeline orchestrator: it drives
// one record through the six component stages, accumulates per-batch
// statistics, and tags an outcome per record.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/resilience"
	"github.com/kilang-desa-murni/salesintel/pkg/tracer"
)

// Stage names tagged onto per-record failures.
const (
	StageFetch              = "fetch"
	StageRawMapping         = "raw-mapping"
	StageRawValidation      = "raw-validation"
	StageCanonicalMapping   = "canonical-mapping"
	StageCanonicalValidation = "canonical-validation"
	StageDedup              = "dedup"
	StageRawStore           = "raw-store"
	StageCanonicalStore     = "canonical-store"
)

// Record outcome statuses, persisted to sync_logs verbatim.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusFailed  = "failed"
)

// BatchStore is the slice of the Raw Zone the pipeline drives batch
// lifecycle and replay reads through. *raw.Zone satisfies it.
type BatchStore interface {
	CreateBatch(ctx context.Context, source string, entityType domain.EntityType, metadata map[string]interface{}) (uuid.UUID, error)
	CompleteBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, batchErrors []domain.BatchError) error
	GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SyncBatch, error)
	GetByBatch(ctx context.Context, source string, entityType domain.EntityType, batchID uuid.UUID) ([]domain.RawRecord, error)
	LatestSyncTime(ctx context.Context, source string, entityType domain.EntityType) (*time.Time, error)
}

// MappingCache is the registry's per-batch cache invalidation hook.
type MappingCache interface {
	ResetBatchCache()
}

// Pipeline drives records from one source through the six stages.
type Pipeline struct {
	source    string
	connector components.Connector
	mappers   map[domain.EntityType]components.Mapper
	validator components.Validator
	normalizer components.Normalizer
	loader    components.Loader
	logger    components.SyncLogger
	registry  MappingCache
	rawZone   BatchStore

	batchSize int
	tracer    *tracer.Tracer
	log       *logger.Logger
}

// Config assembles a Pipeline for one source.
type Config struct {
	Source     string
	Connector  components.Connector
	Mappers    map[domain.EntityType]components.Mapper
	Validator  components.Validator
	Normalizer components.Normalizer
	Loader     components.Loader
	Logger     components.SyncLogger
	Registry   MappingCache
	RawZone    BatchStore
	BatchSize  int
	Tracer     *tracer.Tracer
	Log        *logger.Logger
}

// New creates a Pipeline from its six components.
func New(cfg Config) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Pipeline{
		source: cfg.Source, connector: cfg.Connector, mappers: cfg.Mappers,
		validator: cfg.Validator, normalizer: cfg.Normalizer, loader: cfg.Loader,
		logger: cfg.Logger, registry: cfg.Registry, rawZone: cfg.RawZone,
		batchSize: batchSize, tracer: cfg.Tracer, log: cfg.Log,
	}
}

// Source names the source system this pipeline syncs.
func (p *Pipeline) Source() string { return p.source }

// Execute runs one full or incremental sync batch for entityType. When mode
// is incremental and since is nil, the watermark is derived from the Raw
// Zone's latest ingest time for the (source, entity-type).
func (p *Pipeline) Execute(ctx context.Context, entityType domain.EntityType, mode domain.SyncMode, since *time.Time) (*domain.SyncBatch, error) {
	mapper, ok := p.mappers[entityType]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNoPipeline, "source %s has no mapper for entity type %s", p.source, entityType)
	}

	ctx, span := p.startSpan(ctx, "pipeline.execute",
		attribute.String("sync.source", p.source),
		attribute.String("sync.entity_type", string(entityType)),
		attribute.String("sync.mode", string(mode)))
	defer span.End()

	if mode == domain.ModeIncremental && since == nil {
		watermark, err := p.rawZone.LatestSyncTime(ctx, p.source, entityType)
		if err != nil {
			return nil, err
		}
		since = watermark
	}

	metadata := map[string]interface{}{"mode": string(mode)}
	if since != nil {
		metadata["since"] = since.UTC().Format(time.RFC3339)
	}
	batchID, err := p.rawZone.CreateBatch(ctx, p.source, entityType, metadata)
	if err != nil {
		return nil, err
	}
	batch := &domain.SyncBatch{
		ID: batchID, Source: p.source, EntityType: entityType,
		StartedAt: time.Now().UTC(), Status: domain.BatchRunning, Metadata: metadata,
	}

	// Mapping-registry reads are cached per batch.
	p.registry.ResetBatchCache()
	if mode == domain.ModeFull {
		p.normalizer.ResetCache()
	}

	if err := p.logger.LogSyncStart(ctx, batch); err != nil {
		p.log.Warn().Err(err).Msg("sync start log failed")
	}

	// A failed connect is retried once per batch; if it still fails, the
	// whole batch fails.
	connectErr := resilience.RetryN(ctx, 2, func(ctx context.Context) error {
		return p.connector.Connect(ctx)
	})
	if connectErr != nil {
		return p.failBatch(ctx, batch, connectErr)
	}
	defer p.connector.Disconnect(ctx)

	stream, err := p.connector.FetchRecords(ctx, entityType, since, p.batchSize)
	if err != nil {
		return p.failBatch(ctx, batch, err)
	}

	for {
		record, err := stream.Next(ctx)
		if err == components.ErrEndOfStream {
			break
		}
		if err != nil {
			// A per-record fetch error counts that record failed; the batch
			// continues unless the breaker has opened, in which case every
			// subsequent Next fails the same way and the error list bounds
			// the noise.
			batch.Counts.Processed++
			batch.Counts.Failed++
			batch.AppendError("", StageFetch, err.Error())
			continue
		}
		p.processAndCount(ctx, record, mapper, entityType, batch)
	}

	p.finalize(batch)
	if err := p.rawZone.CompleteBatch(ctx, batch.ID, batch.Status, batch.Counts, batch.Errors); err != nil {
		p.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("complete batch write failed")
	}
	if err := p.logger.LogSyncComplete(ctx, batch); err != nil {
		p.log.Warn().Err(err).Msg("sync complete log failed")
	}
	return batch, nil
}

// SyncSingle runs one record through the full pipeline, synthesizing a
// batch per invocation. Used by webhook-style single-record syncs.
func (p *Pipeline) SyncSingle(ctx context.Context, entityType domain.EntityType, sourceID string) (*domain.SyncBatch, error) {
	mapper, ok := p.mappers[entityType]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNoPipeline, "source %s has no mapper for entity type %s", p.source, entityType)
	}

	if err := p.connector.Connect(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionError, "connect failed")
	}
	defer p.connector.Disconnect(ctx)

	record, err := p.connector.FetchRecord(ctx, entityType, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetchError, "single record fetch failed")
	}
	if record == nil {
		return nil, errors.ErrNotFound("source record")
	}

	metadata := map[string]interface{}{"single": true, "source_id": sourceID}
	batchID, err := p.rawZone.CreateBatch(ctx, p.source, entityType, metadata)
	if err != nil {
		return nil, err
	}
	batch := &domain.SyncBatch{
		ID: batchID, Source: p.source, EntityType: entityType,
		StartedAt: time.Now().UTC(), Status: domain.BatchRunning, Metadata: metadata,
	}
	p.registry.ResetBatchCache()

	p.processAndCount(ctx, record, mapper, entityType, batch)

	p.finalize(batch)
	if err := p.rawZone.CompleteBatch(ctx, batch.ID, batch.Status, batch.Counts, batch.Errors); err != nil {
		p.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("complete batch write failed")
	}
	return batch, nil
}

// processAndCount runs one record through the stages and folds its outcome
// into the batch counters, incrementing each counter exactly once per input
// record.
func (p *Pipeline) processAndCount(ctx context.Context, record components.SourceRecord, mapper components.Mapper, entityType domain.EntityType, batch *domain.SyncBatch) {
	outcome := p.processRecord(ctx, record, mapper, batch.ID)
	batch.Counts.Processed++
	switch outcome.status {
	case StatusCreated:
		batch.Counts.Created++
	case StatusUpdated:
		batch.Counts.Updated++
	default:
		batch.Counts.Failed++
		batch.AppendError(outcome.sourceID, outcome.stage, outcome.errMsg)
	}
	if err := p.logger.LogRecordProcessed(ctx, batch.ID, outcome.sourceID, outcome.status, outcome.errMsg); err != nil {
		p.log.Warn().Err(err).Msg("record log failed")
	}
}

type recordOutcome struct {
	sourceID string
	status   string
	stage    string
	errMsg   string
}

func failed(sourceID, stage string, err error) recordOutcome {
	return recordOutcome{sourceID: sourceID, status: StatusFailed, stage: stage, errMsg: err.Error()}
}

// processRecord is the per-record state machine:
// map-to-raw -> validate-raw -> map-to-canonical -> validate-canonical ->
// normalize -> deduplicate -> resolve-references -> load-raw ->
// load-canonical -> load-serving.
func (p *Pipeline) processRecord(ctx context.Context, record components.SourceRecord, mapper components.Mapper, batchID uuid.UUID) recordOutcome {
	ctx, span := p.startSpan(ctx, "pipeline.process_record")
	defer span.End()

	rawRec, err := mapper.MapToRaw(record, batchID)
	if err != nil {
		return failed(fmt.Sprintf("%v", record["id"]), StageRawMapping, err)
	}
	sourceID := rawRec.SourceID

	if errs := p.validator.ValidateRaw(rawRec); len(errs) > 0 {
		return failed(sourceID, StageRawValidation, errors.New(errors.ErrCodeValidationError, strings.Join(errs, "; ")))
	}

	entity, err := mapper.MapToCanonical(ctx, rawRec)
	if err != nil {
		return failed(sourceID, StageCanonicalMapping, err)
	}

	if errs := p.validator.ValidateCanonical(entity); len(errs) > 0 {
		return failed(sourceID, StageCanonicalValidation, errors.New(errors.ErrCodeValidationError, strings.Join(errs, "; ")))
	}

	entity, err = p.normalizer.Normalize(ctx, entity)
	if err != nil {
		// Normalize never fails the record by contract; an error here is an
		// infrastructure fault and still must not lose the record silently.
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("normalize error ignored")
	}

	isUpdate, err := p.normalizer.Deduplicate(ctx, entity)
	if err != nil {
		return failed(sourceID, StageDedup, err)
	}

	entity, err = p.normalizer.ResolveReferences(ctx, entity)
	if err != nil {
		// Unresolved references are tolerated; only infrastructure errors
		// land here and they leave the refs as source ids.
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("reference resolution incomplete")
	}

	if _, err := p.loader.LoadRaw(ctx, rawRec); err != nil {
		return failed(sourceID, StageRawStore, err)
	}

	if _, _, err := p.loader.LoadCanonical(ctx, entity); err != nil {
		// The raw copy stays; replay fixes it.
		return failed(sourceID, StageCanonicalStore, err)
	}

	if err := p.loader.LoadServing(ctx, entity); err != nil {
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("serving refresh failed")
	}

	if isUpdate {
		return recordOutcome{sourceID: sourceID, status: StatusUpdated}
	}
	return recordOutcome{sourceID: sourceID, status: StatusCreated}
}

// finalize stamps the terminal status from the counters: completed when
// nothing failed, partial when something failed but progress was made,
// failed otherwise.
func (p *Pipeline) finalize(batch *domain.SyncBatch) {
	now := time.Now().UTC()
	batch.CompletedAt = &now
	switch {
	case batch.Counts.Failed == 0:
		batch.Status = domain.BatchCompleted
	case batch.Counts.Created+batch.Counts.Updated > 0:
		batch.Status = domain.BatchPartial
	default:
		batch.Status = domain.BatchFailed
	}
}

// failBatch finalizes a batch that died before processing any record (e.g.
// connect failed after its one retry).
func (p *Pipeline) failBatch(ctx context.Context, batch *domain.SyncBatch, cause error) (*domain.SyncBatch, error) {
	now := time.Now().UTC()
	batch.CompletedAt = &now
	batch.Status = domain.BatchFailed
	batch.AppendError("", StageFetch, cause.Error())
	if err := p.rawZone.CompleteBatch(ctx, batch.ID, batch.Status, batch.Counts, batch.Errors); err != nil {
		p.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("complete batch write failed")
	}
	if err := p.logger.LogSyncComplete(ctx, batch); err != nil {
		p.log.Warn().Err(err).Msg("sync complete log failed")
	}
	return batch, errors.Wrap(cause, errors.ErrCodeConnectionError, "sync batch failed")
}

func (p *Pipeline) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.StartSpan(ctx, name, attrs...)
}

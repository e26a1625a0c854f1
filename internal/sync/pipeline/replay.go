package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// Replay reprocesses every raw record of a prior batch through the post-raw
// portion of the pipeline. The raw write is skipped — the originals are
// already in the raw zone — which, combined with raw immutability, makes
// replay the idempotent recovery path able to rebuild canonical and serving
// state from raw alone.
func (p *Pipeline) Replay(ctx context.Context, batchID uuid.UUID) (*domain.SyncBatch, error) {
	original, err := p.rawZone.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if original.Source != p.source {
		return nil, errors.Newf(errors.ErrCodeNoPipeline, "batch %s belongs to source %s, not %s", batchID, original.Source, p.source)
	}
	mapper, ok := p.mappers[original.EntityType]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNoPipeline, "source %s has no mapper for entity type %s", p.source, original.EntityType)
	}

	records, err := p.rawZone.GetByBatch(ctx, original.Source, original.EntityType, batchID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{"replay_of": batchID.String()}
	newBatchID, err := p.rawZone.CreateBatch(ctx, original.Source, original.EntityType, metadata)
	if err != nil {
		return nil, err
	}
	batch := &domain.SyncBatch{
		ID: newBatchID, Source: original.Source, EntityType: original.EntityType,
		StartedAt: time.Now().UTC(), Status: domain.BatchRunning, Metadata: metadata,
	}

	p.registry.ResetBatchCache()
	p.normalizer.ResetCache()
	if err := p.logger.LogSyncStart(ctx, batch); err != nil {
		p.log.Warn().Err(err).Msg("sync start log failed")
	}

	for _, rec := range records {
		// Reconstruct a synthetic raw record under the new batch id; the
		// stored original is never touched.
		synthetic := rec
		synthetic.SyncBatchID = newBatchID

		outcome := p.replayRecord(ctx, synthetic, mapper)
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

	p.finalize(batch)
	if err := p.rawZone.CompleteBatch(ctx, batch.ID, batch.Status, batch.Counts, batch.Errors); err != nil {
		p.log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("complete batch write failed")
	}
	if err := p.logger.LogSyncComplete(ctx, batch); err != nil {
		p.log.Warn().Err(err).Msg("sync complete log failed")
	}
	return batch, nil
}

// replayRecord is processRecord minus the fetch and raw-store stages.
func (p *Pipeline) replayRecord(ctx context.Context, rawRec domain.RawRecord, mapper components.Mapper) recordOutcome {
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
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("normalize error ignored")
	}

	isUpdate, err := p.normalizer.Deduplicate(ctx, entity)
	if err != nil {
		return failed(sourceID, StageDedup, err)
	}

	entity, err = p.normalizer.ResolveReferences(ctx, entity)
	if err != nil {
		p.log.Warn().Err(err).Str("source_id", sourceID).Msg("reference resolution incomplete")
	}

	if _, _, err := p.loader.LoadCanonical(ctx, entity); err != nil {
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

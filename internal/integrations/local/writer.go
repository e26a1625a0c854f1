// Package local implements the "local" source: writes originating in the
// application itself (a user creating an opportunity in the UI) enter the
// Canonical Zone through the same upsert primitive as synced data, stamped
// with a local SourceRef. There is no separate business-CRUD write path into
// canonical collections; an unstamped write is rejected.
package local

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/serving"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Writer is the local-source upsert path. It bypasses
// Connector/Mapper/Validator but still normalizes, upserts through the
// Canonical Zone, audits, and refreshes Serving.
type Writer struct {
	canonical  *canonical.Zone
	serving    *serving.Zone
	normalizer components.Normalizer
	validator  components.Validator
	syncLog    components.SyncLogger
	log        *logger.Logger
}

// NewWriter creates the local write path.
func NewWriter(cz *canonical.Zone, sz *serving.Zone, syncLog components.SyncLogger, lakeCacheSize int, log *logger.Logger) *Writer {
	return &Writer{
		canonical:  cz,
		serving:    sz,
		normalizer: components.NewEntityNormalizer(domain.LocalSource, cz, lakeCacheSize, log),
		validator:  components.NewEntityValidator(),
		syncLog:    syncLog,
		log:        log,
	}
}

// Upsert writes a UI-originated entity. A fresh entity gets a local
// SourceRef stamped from its id; an entity already carrying refs keeps
// them. The write is validated and normalized like synced data.
func (w *Writer) Upsert(ctx context.Context, entityType domain.EntityType, entity domain.Entity, userID *uuid.UUID) (uuid.UUID, bool, error) {
	env := entity.GetEnvelope()
	env.EntityType = entityType
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}

	var ref domain.SourceRef
	if len(env.Sources) == 0 {
		ref = domain.SourceRef{Source: domain.LocalSource, SourceID: env.ID.String()}
		env.Sources = []domain.SourceRef{ref}
	} else {
		ref = env.Sources[len(env.Sources)-1]
	}

	if errs := w.validator.ValidateCanonical(entity); len(errs) > 0 {
		return uuid.Nil, false, errors.ErrValidation(errs[0])
	}
	entity, err := w.normalizer.Normalize(ctx, entity)
	if err != nil {
		w.log.Warn().Err(err).Msg("local normalize error ignored")
	}

	id, isNew, err := w.canonical.Upsert(ctx, entityType, entity, ref, userID)
	if err != nil {
		return uuid.Nil, false, err
	}

	action := domain.AuditSyncUpdate
	if isNew {
		action = domain.AuditSyncCreate
	}
	w.audit(ctx, entityType, id, action, userID)

	if env.OwnerID != nil {
		if _, err := w.serving.RefreshUserStats(ctx, *env.OwnerID, domain.PeriodDaily); err != nil {
			w.log.Warn().Err(err).Msg("serving refresh after local write failed")
		}
	}
	return id, isNew, nil
}

// ChangeStage transitions a UI-owned opportunity to the next stage,
// enforcing the allowed-transition table: closed stages have no legal
// outgoing transitions. Sync-sourced data is never run through this check;
// the pipeline treats source data as authoritative.
func (w *Writer) ChangeStage(ctx context.Context, opportunityID uuid.UUID, next domain.Stage, userID *uuid.UUID) (*domain.Opportunity, error) {
	var opp domain.Opportunity
	if err := w.canonical.GetByID(ctx, domain.EntityOpportunity, opportunityID, &opp); err != nil {
		return nil, err
	}
	if opp.Stage == next {
		return &opp, nil
	}
	if !opp.Stage.CanTransitionTo(next) {
		return nil, errors.Newf(errors.ErrCodeValidation, "no legal transition from %s to %s", opp.Stage, next)
	}

	opp.AddStageChange(next, userID)
	if len(opp.Sources) == 0 {
		return nil, errors.ErrValidation("opportunity carries no source reference")
	}
	ref := opp.Sources[0]
	id, _, err := w.canonical.Upsert(ctx, domain.EntityOpportunity, &opp, ref, userID)
	if err != nil {
		return nil, err
	}
	w.audit(ctx, domain.EntityOpportunity, id, domain.AuditSyncUpdate, userID)
	if opp.OwnerID != nil {
		if _, err := w.serving.RefreshUserStats(ctx, *opp.OwnerID, domain.PeriodDaily); err != nil {
			w.log.Warn().Err(err).Msg("serving refresh after stage change failed")
		}
	}
	return &opp, nil
}

func (w *Writer) audit(ctx context.Context, entityType domain.EntityType, id uuid.UUID, action domain.AuditAction, userID *uuid.UUID) {
	entry := domain.AuditEntry{
		ID: uuid.New(), EntityType: entityType, EntityID: id, Action: action,
		Zone: domain.ZoneCanonical, Source: domain.LocalSource, UserID: userID,
		Timestamp: time.Now().UTC(),
	}
	if err := w.syncLog.LogAudit(ctx, entry); err != nil {
		w.log.Warn().Err(err).Str("entity_id", id.String()).Msg("local audit write failed")
	}
}

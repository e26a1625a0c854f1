// Package manager implements the data-lake manager: the unified façade
// over the three zones for ingest, RBAC-filtered query, audit trail, batch
// lifecycle, and integrity checks.
package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

const auditTrailCollection = "audit_trail"

// logAudit writes one audit entry. Audit is the only cross-cutting write:
// always attempted, never failing the caller — write errors are logged and
// swallowed.
func (m *Manager) logAudit(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, action domain.AuditAction, zone domain.Zone, source string, userID *uuid.UUID, changes map[string]interface{}) {
	entry := domain.AuditEntry{
		ID: uuid.New(), EntityType: entityType, EntityID: entityID,
		Action: action, Zone: zone, Source: source, UserID: userID,
		Changes: changes, Timestamp: time.Now().UTC(),
	}
	coll := m.store.Collection(auditTrailCollection)
	if _, err := coll.InsertOne(ctx, entry); err != nil {
		m.log.Warn().Err(err).Str("entity_id", entityID.String()).Msg("audit write failed")
	}
}

// GetAuditTrail returns audit entries, optionally scoped to an entity type
// and/or id, newest first.
func (m *Manager) GetAuditTrail(ctx context.Context, entityType domain.EntityType, entityID *uuid.UUID, limit int64) ([]domain.AuditEntry, error) {
	filter := bson.M{}
	if entityType != "" {
		filter["entity_type"] = entityType
	}
	if entityID != nil {
		filter["entity_id"] = *entityID
	}
	coll := m.store.Collection(auditTrailCollection)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "get audit trail failed")
	}
	defer cursor.Close(ctx)

	var entries []domain.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode audit trail failed")
	}
	return entries, nil
}

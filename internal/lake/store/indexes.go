package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

// EnsureAllIndexes creates the indexes the zones rely on: the SourceRef
// pair index that backs upsert-by-SourceRef, the job-queue dequeue index,
// batch history, sync logs, audit trail, and the serving-view keys.
// Idempotent; called once at startup.
func (s *Store) EnsureAllIndexes(ctx context.Context) error {
	canonicalIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sources.source", Value: 1}, {Key: "sources.source_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "assigned_to", Value: 1}}},
		{Keys: bson.D{{Key: "team_id", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	}
	for _, t := range []domain.EntityType{
		domain.EntityContact, domain.EntityAccount, domain.EntityOpportunity,
		domain.EntityActivity, domain.EntityUser,
	} {
		if err := s.EnsureIndexes(ctx, t.CollectionName(), canonicalIndexes); err != nil {
			return err
		}
	}

	fixed := map[string][]mongo.IndexModel{
		"sync_jobs": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "source", Value: 1}, {Key: "entity_type", Value: 1}, {Key: "completed_at", Value: -1}}},
		},
		"sync_batches": {
			{Keys: bson.D{{Key: "source", Value: 1}, {Key: "entity_type", Value: 1}, {Key: "started_at", Value: -1}}},
		},
		"sync_logs": {
			{Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "event", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		"sync_schedules": {
			{Keys: bson.D{{Key: "enabled", Value: 1}, {Key: "next_run", Value: 1}}},
		},
		"audit_trail": {
			{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		"events_outbox": {
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		"serving_dashboard_stats": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "period", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"serving_pipeline_summary": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "scope", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"serving_kpi_snapshots": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		"serving_activity_feed": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"field_mappings": {
			{Keys: bson.D{{Key: "integration", Value: 1}, {Key: "entity_type", Value: 1}}},
		},
	}
	for collection, indexes := range fixed {
		if err := s.EnsureIndexes(ctx, collection, indexes); err != nil {
			return err
		}
	}
	return nil
}

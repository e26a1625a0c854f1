// Package components defines the six narrow pipeline contracts every
// integration implements — Connector, Mapper, Validator, Normalizer, Loader,
// SyncLogger — plus the shared implementations of the source-independent
// ones (validation, normalization, loading, sync logging).
package components

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

// SourceRecord is one decoded record as the source system returned it.
type SourceRecord map[string]interface{}

// ErrEndOfStream is returned by RecordStream.Next when the stream is
// exhausted. It is a terminator, not a failure.
var ErrEndOfStream = errors.New("end of record stream")

// RecordStream yields source records one at a time, in source-side
// modification order (write-date ascending). Streams are finite and
// restartable only by reissuing the fetch.
type RecordStream interface {
	Next(ctx context.Context) (SourceRecord, error)
}

// ConnectionStatus is the outcome of a connector's test-connection probe.
type ConnectionStatus struct {
	Connected bool                   `json:"connected"`
	Source    string                 `json:"source"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Connector wraps one source system: an ERP speaking JSON-RPC, a CRM
// speaking REST, or anything else able to satisfy these six operations.
// Implementations must respect `since` for incremental syncs and order
// FetchRecords output by source-side modification time ascending.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	TestConnection(ctx context.Context) ConnectionStatus
	FetchRecords(ctx context.Context, entityType domain.EntityType, since *time.Time, batchSize int) (RecordStream, error)
	FetchRecord(ctx context.Context, entityType domain.EntityType, sourceID string) (SourceRecord, error)
	GetRecordCount(ctx context.Context, entityType domain.EntityType, since *time.Time) (int64, error)
	SourceName() string
}

// Mapper transforms source records into the internal model. Each mapper is
// responsible for stamping a SourceRef on the entity and copying source
// timestamps when present. Registry-configured field mappings, when present
// for the (integration, entity-type) pair, win over built-in defaults.
type Mapper interface {
	MapToRaw(source SourceRecord, batchID uuid.UUID) (domain.RawRecord, error)
	MapToCanonical(ctx context.Context, raw domain.RawRecord) (domain.Entity, error)
}

// Validator checks records before they are written anywhere. Raw validation
// enforces presence of a source id and non-empty raw data; canonical
// validation enforces the per-type constraints of the data model.
type Validator interface {
	ValidateRaw(rec domain.RawRecord) []string
	ValidateCanonical(entity domain.Entity) []string
}

// Normalizer standardizes entities, detects duplicates, and resolves
// source-native foreign keys to canonical ids.
type Normalizer interface {
	// Normalize trims names (keeping their letter case), lower-cases emails, canonicalizes
	// phone digits and websites, and clamps numeric ranges. It never fails
	// the record.
	Normalize(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	// Deduplicate looks up an existing entity by SourceRef, then by
	// cross-source natural key, and merges its identity and SourceRefs onto
	// entity (keeping the existing id). Returns true when entity now
	// describes an existing document. A dedup conflict (two distinct
	// existing matches) is returned as an error; nothing is auto-merged.
	Deduplicate(ctx context.Context, entity domain.Entity) (bool, error)
	// ResolveReferences rewrites source-native foreign keys to canonical
	// ids via the per-source id map. Unresolved refs are tolerated and left
	// as source ids on the entity.
	ResolveReferences(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	// ResetCache flushes the id-resolution cache; called at batch
	// boundaries on full syncs to bound staleness.
	ResetCache()
}

// Loader writes to the data lake. Raw and canonical writes are independent;
// a canonical write is durable only after the raw write it derived from is.
type Loader interface {
	LoadRaw(ctx context.Context, rec domain.RawRecord) (uuid.UUID, error)
	LoadCanonical(ctx context.Context, entity domain.Entity) (uuid.UUID, bool, error)
	LoadServing(ctx context.Context, entity domain.Entity) error
}

// SyncLogEntry is one persisted sync_logs document: a batch-lifecycle event
// or a per-record processing event.
type SyncLogEntry struct {
	ID         uuid.UUID              `json:"id" bson:"_id"`
	BatchID    uuid.UUID              `json:"batch_id" bson:"batch_id"`
	Source     string                 `json:"source,omitempty" bson:"source,omitempty"`
	EntityType domain.EntityType      `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	Event      string                 `json:"event" bson:"event"`
	SourceID   string                 `json:"source_id,omitempty" bson:"source_id,omitempty"`
	Status     string                 `json:"status,omitempty" bson:"status,omitempty"`
	Error      string                 `json:"error,omitempty" bson:"error,omitempty"`
	Stats      *domain.BatchCounts    `json:"stats,omitempty" bson:"stats,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
}

// SyncLogger records batch lifecycle and per-record events. Logging is
// best-effort from the pipeline's point of view: a logger error never fails
// a record or a batch.
type SyncLogger interface {
	LogSyncStart(ctx context.Context, batch *domain.SyncBatch) error
	LogSyncComplete(ctx context.Context, batch *domain.SyncBatch) error
	LogRecordProcessed(ctx context.Context, batchID uuid.UUID, sourceID, status, errMsg string) error
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
	GetSyncHistory(ctx context.Context, source string, limit int64) ([]SyncLogEntry, error)
	// PruneOlderThan bounds sync_logs retention, deleting events older than
	// cutoff. Invoked by maintenance calls, not a background job.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

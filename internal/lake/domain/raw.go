package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one immutable, append-only observation of a source-system
// record. It is never mutated once written; (Source, SourceID, IngestedAt)
// is its natural key and history is preserved.
type RawRecord struct {
	RawID       uuid.UUID              `json:"raw_id" bson:"_id"`
	Source      string                 `json:"source" bson:"source"`
	EntityType  EntityType             `json:"entity_type" bson:"entity_type"`
	SourceID    string                 `json:"source_id" bson:"source_id"`
	RawData     map[string]interface{} `json:"raw_data" bson:"raw_data"`
	IngestedAt  time.Time              `json:"ingested_at" bson:"ingested_at"`
	SyncBatchID uuid.UUID              `json:"sync_batch_id" bson:"sync_batch_id"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// RawCollectionName returns the raw_<source>_<entitytype>s collection name
// for a (source, entity-type) pair.
func RawCollectionName(source string, entityType EntityType) string {
	return "raw_" + source + "_" + string(entityType) + "s"
}

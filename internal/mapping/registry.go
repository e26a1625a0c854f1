package mapping

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

const fieldMappingsCollection = "field_mappings"

// Registry persists field-mapping documents and resolves them once per
// batch, so a long-running full sync doesn't re-query Mongo for every
// record.
type Registry struct {
	store *store.Store

	mu    sync.RWMutex
	cache map[string][]FieldMapping
}

// New creates a field-mapping Registry.
func New(s *store.Store) *Registry {
	return &Registry{store: s, cache: make(map[string][]FieldMapping)}
}

// Put upserts the mapping list for (integration, entity-type).
func (r *Registry) Put(ctx context.Context, integration string, entityType domain.EntityType, mappings []FieldMapping) error {
	doc := Document{
		ID: documentID(integration, entityType), Integration: integration,
		EntityType: entityType, Mappings: mappings, UpdatedAt: time.Now().UTC(),
	}
	coll := r.store.Collection(fieldMappingsCollection)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "put field mapping failed")
	}
	r.mu.Lock()
	delete(r.cache, doc.ID)
	r.mu.Unlock()
	return nil
}

// Resolve returns the mapping list for (integration, entity-type), from
// the per-batch cache when present, otherwise loading it from Mongo and
// caching it. An empty, non-error result means "no registry entry" —
// callers fall back to their mapper's built-in defaults; a configured entry
// always wins over them.
func (r *Registry) Resolve(ctx context.Context, integration string, entityType domain.EntityType) ([]FieldMapping, error) {
	id := documentID(integration, entityType)

	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	coll := r.store.Collection(fieldMappingsCollection)
	var doc Document
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		r.mu.Lock()
		r.cache[id] = nil
		r.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "resolve field mapping failed")
	}

	r.mu.Lock()
	r.cache[id] = doc.Mappings
	r.mu.Unlock()
	return doc.Mappings, nil
}

// ResetBatchCache clears the per-batch cache. Called by the pipeline at the
// start of each batch so long-running full syncs don't read a stale
// mapping an admin updated mid-run, while still caching within the batch.
func (r *Registry) ResetBatchCache() {
	r.mu.Lock()
	r.cache = make(map[string][]FieldMapping)
	r.mu.Unlock()
}

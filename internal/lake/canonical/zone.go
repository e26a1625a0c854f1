// Package canonical implements the canonical zone: deduplicated,
// normalized entities with multi-source provenance, upsert-by-SourceRef,
// duplicate detection, and merge with reference resolution.
package canonical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// Zone is the canonical zone repository. It is generic across entity
// types, dispatching on the EntityType tag to the right collection rather
// than on a runtime class.
type Zone struct {
	store *store.Store
	log   *logger.Logger
}

// New creates a Canonical Zone repository.
func New(s *store.Store, log *logger.Logger) *Zone {
	return &Zone{store: s, log: log}
}

func (z *Zone) collection(t domain.EntityType) *mongo.Collection {
	return z.store.Collection(t.CollectionName())
}

// EnvelopeDoc decodes only the envelope fields of a matched document,
// enough to carry identity/version/sources forward into an upsert without
// needing to know the full concrete entity shape.
type EnvelopeDoc struct {
	ID        uuid.UUID           `bson:"_id"`
	CreatedAt time.Time           `bson:"created_at"`
	CreatedBy *uuid.UUID          `bson:"created_by,omitempty"`
	Version   int                 `bson:"version"`
	Sources   []domain.SourceRef  `bson:"sources"`
}

// toFieldMap marshals entity to a bson.M and strips the envelope fields that
// Upsert manages itself (_id, entity_type, created_at, created_by, version,
// sources), leaving the payload fields plus updated_at/updated_by for $set.
func toFieldMap(entity domain.Entity) (bson.M, error) {
	raw, err := bson.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for _, key := range []string{"_id", "entity_type", "created_at", "created_by", "version", "sources"} {
		delete(m, key)
	}
	return m, nil
}

// Upsert finds an existing entity by matching SourceRef (source, source-id);
// if found, it carries forward id/created-at/created-by, bumps version, and
// merges any new SourceRefs; otherwise it inserts entity as new with
// version=1. The decision (insert vs. update) is made atomically by a single
// UpdateOne(upsert=true) keyed on the SourceRef match, so two concurrent
// upserts of the same ref can never both observe is-new=true.
func (z *Zone) Upsert(ctx context.Context, entityType domain.EntityType, entity domain.Entity, ref domain.SourceRef, userID *uuid.UUID) (uuid.UUID, bool, error) {
	env := entity.GetEnvelope()
	env.EntityType = entityType

	setDoc, err := toFieldMap(entity)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, errors.ErrCodeInternal, "marshal entity failed")
	}
	now := time.Now().UTC()
	setDoc["updated_at"] = now
	if userID != nil {
		setDoc["updated_by"] = userID
	}

	// The filter matches on ANY of the entity's refs, not just the new one:
	// after a cross-source dedup merge the entity carries the existing
	// document's refs too, and the write must land on that document.
	refs := append([]domain.SourceRef{}, env.Sources...)
	if !env.HasSourceRef(ref) {
		refs = append(refs, ref)
	}
	refFilters := make([]bson.M, 0, len(refs))
	for _, r := range refs {
		refFilters = append(refFilters, bson.M{"sources": bson.M{"$elemMatch": bson.M{"source": r.Source, "source_id": r.SourceID}}})
	}
	newID := uuid.New()
	filter := bson.M{"$or": refFilters}
	update := bson.M{
		"$set": setDoc,
		"$setOnInsert": bson.M{
			"_id":         newID,
			"entity_type": entityType,
			"created_at":  now,
			"created_by":  userID,
		},
		"$inc":      bson.M{"version": 1},
		"$addToSet": bson.M{"sources": bson.M{"$each": refs}},
	}

	coll := z.collection(entityType)
	result, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, errors.ErrCodeDedupConflict, "upsert failed")
	}
	isNew := result.UpsertedCount > 0

	if err := coll.FindOne(ctx, filter).Decode(entity); err != nil {
		return uuid.Nil, false, errors.Wrap(err, errors.ErrCodeDBQuery, "read back upserted entity failed")
	}
	return env.ID, isNew, nil
}

// GetByID decodes the entity with id into out (a pointer to a concrete
// canonical entity type, e.g. *domain.Contact).
func (z *Zone) GetByID(ctx context.Context, entityType domain.EntityType, id uuid.UUID, out domain.Entity) error {
	err := z.collection(entityType).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return errors.ErrNotFound(string(entityType))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "get by id failed")
	}
	return nil
}

// GetBySource decodes the entity matching (source, source-id) into out.
func (z *Zone) GetBySource(ctx context.Context, entityType domain.EntityType, source, sourceID string, out domain.Entity) error {
	filter := bson.M{"sources": bson.M{"$elemMatch": bson.M{"source": source, "source_id": sourceID}}}
	err := z.collection(entityType).FindOne(ctx, filter).Decode(out)
	if err == mongo.ErrNoDocuments {
		return errors.ErrNotFound(string(entityType))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "get by source failed")
	}
	return nil
}

// Find decodes all entities matching query into out (a pointer to a slice
// of a concrete canonical entity type).
func (z *Zone) Find(ctx context.Context, entityType domain.EntityType, query bson.M, limit, skip int64, sort bson.D, out interface{}) error {
	opts := options.Find().SetLimit(limit).SetSkip(skip)
	if sort != nil {
		opts.SetSort(sort)
	}
	cursor, err := z.collection(entityType).Find(ctx, query, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "find failed")
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "decode find results failed")
	}
	return nil
}

// Count counts entities matching query.
func (z *Zone) Count(ctx context.Context, entityType domain.EntityType, query bson.M) (int64, error) {
	count, err := z.collection(entityType).CountDocuments(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDBQuery, "count failed")
	}
	return count, nil
}

// Delete removes an entity by id. Canonical entities are only ever deleted
// via explicit admin merge/delete, never by the sync pipeline.
func (z *Zone) Delete(ctx context.Context, entityType domain.EntityType, id uuid.UUID) error {
	result, err := z.collection(entityType).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDBQuery, "delete failed")
	}
	if result.DeletedCount == 0 {
		return errors.ErrNotFound(string(entityType))
	}
	return nil
}

// IDBySource resolves a (source, source-id) pair to the canonical id holding
// it, without decoding the full document. Used by the normalizer's
// reference-resolution cache fill.
func (z *Zone) IDBySource(ctx context.Context, entityType domain.EntityType, source, sourceID string) (uuid.UUID, bool, error) {
	filter := bson.M{"sources": bson.M{"$elemMatch": bson.M{"source": source, "source_id": sourceID}}}
	var doc struct {
		ID uuid.UUID `bson:"_id"`
	}
	err := z.collection(entityType).FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, errors.ErrCodeDBQuery, "id by source lookup failed")
	}
	return doc.ID, true, nil
}

// EnvelopeBySource fetches just the envelope fields of the entity matching a
// (source, source-id) pair. Used by the normalizer's dedup step to carry
// identity forward without knowing the concrete entity shape.
func (z *Zone) EnvelopeBySource(ctx context.Context, entityType domain.EntityType, source, sourceID string) (*EnvelopeDoc, bool, error) {
	filter := bson.M{"sources": bson.M{"$elemMatch": bson.M{"source": source, "source_id": sourceID}}}
	var doc EnvelopeDoc
	err := z.collection(entityType).FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeDBQuery, "envelope by source lookup failed")
	}
	return &doc, true, nil
}

// EnvelopeByNaturalKey fetches the envelope of the entity matching the
// type's natural key (email for contact/user, exact name for account), used
// for cross-source dedup. Returns (nil, false, nil) for types with no
// natural key.
func (z *Zone) EnvelopeByNaturalKey(ctx context.Context, entityType domain.EntityType, email, name string) (*EnvelopeDoc, bool, error) {
	filter, ok := naturalKeyFilter(entityType, email, name, uuid.Nil)
	if !ok {
		return nil, false, nil
	}
	var doc EnvelopeDoc
	err := z.collection(entityType).FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeDBQuery, "envelope by natural key lookup failed")
	}
	return &doc, true, nil
}

// RawEnvelopeByID fetches just the envelope fields of an entity, without
// needing to know its full concrete type. Used by the manager's
// verify-data-integrity and by merge's reference-rewrite step.
func (z *Zone) RawEnvelopeByID(ctx context.Context, entityType domain.EntityType, id uuid.UUID) (*EnvelopeDoc, error) {
	var doc EnvelopeDoc
	err := z.collection(entityType).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrNotFound(string(entityType))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "raw envelope lookup failed")
	}
	return &doc, nil
}

package components

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kilang-desa-murni/salesintel/internal/lake/store"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/events"
)

const eventsOutboxCollection = "events_outbox"

// MongoOutbox persists parked events for the outbox publisher.
type MongoOutbox struct {
	store *store.Store
}

// NewMongoOutbox creates the outbox repository.
func NewMongoOutbox(s *store.Store) *MongoOutbox {
	return &MongoOutbox{store: s}
}

type outboxDoc struct {
	ID        string           `bson:"_id"`
	EventType events.EventType `bson:"event_type"`
	Payload   []byte           `bson:"payload"`
	Published bool             `bson:"published"`
	CreatedAt time.Time        `bson:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

// Save stores one outbox entry.
func (o *MongoOutbox) Save(ctx context.Context, entry *events.OutboxEntry) error {
	doc := outboxDoc{
		ID: entry.ID, EventType: entry.EventType, Payload: entry.Payload,
		Published: entry.Published, CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt,
	}
	_, err := o.store.Collection(eventsOutboxCollection).ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "outbox save failed")
	}
	return nil
}

// GetUnpublished returns up to limit unpublished entries, oldest first.
func (o *MongoOutbox) GetUnpublished(ctx context.Context, limit int) ([]*events.OutboxEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))
	cursor, err := o.store.Collection(eventsOutboxCollection).Find(ctx, bson.M{"published": false}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "outbox read failed")
	}
	defer cursor.Close(ctx)

	var docs []outboxDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode outbox entries failed")
	}
	entries := make([]*events.OutboxEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, &events.OutboxEntry{
			ID: doc.ID, EventType: doc.EventType, Payload: doc.Payload,
			Published: doc.Published, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
		})
	}
	return entries, nil
}

// MarkPublished flags an entry as delivered.
func (o *MongoOutbox) MarkPublished(ctx context.Context, id string) error {
	_, err := o.store.Collection(eventsOutboxCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"published": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "outbox mark published failed")
	}
	return nil
}

// Delete removes an entry.
func (o *MongoOutbox) Delete(ctx context.Context, id string) error {
	_, err := o.store.Collection(eventsOutboxCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreError, "outbox delete failed")
	}
	return nil
}

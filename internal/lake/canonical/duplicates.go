package canonical

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// DuplicateCandidate is a candidate duplicate match for an entity, keyed by
// the natural key used for the entity type.
type DuplicateCandidate struct {
	ID      uuid.UUID `bson:"_id"`
	Version int       `bson:"version"`
}

// naturalKeyFilter returns the natural-key match filter for an entity type:
// email for contact/user, exact name for account. Opportunity and activity
// have no natural key and never produce duplicate candidates.
func naturalKeyFilter(entityType domain.EntityType, email, name string, excludeID uuid.UUID) (bson.M, bool) {
	filter := bson.M{"_id": bson.M{"$ne": excludeID}}
	switch entityType {
	case domain.EntityContact, domain.EntityUser:
		if email == "" {
			return nil, false
		}
		filter["email"] = email
	case domain.EntityAccount:
		if name == "" {
			return nil, false
		}
		filter["name"] = name
	default:
		return nil, false
	}
	return filter, true
}

// FindDuplicates returns candidate duplicates of entity by natural key.
// Never merges automatically; callers decide whether and how to merge.
func (z *Zone) FindDuplicates(ctx context.Context, entityType domain.EntityType, id uuid.UUID, email, name string) ([]DuplicateCandidate, error) {
	filter, ok := naturalKeyFilter(entityType, email, name, id)
	if !ok {
		return nil, nil
	}
	cursor, err := z.collection(entityType).Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "find duplicates failed")
	}
	defer cursor.Close(ctx)

	var candidates []DuplicateCandidate
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDBQuery, "decode duplicate candidates failed")
	}
	return candidates, nil
}

package canonical

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

type fkTarget struct {
	Collection string
	Field      string
}

// fkTargets lists the (collection, field) pairs that hold a foreign-key
// reference to an entity of the given type: contact<->account,
// opportunity.{account,contact}, activity.{account,contact,opportunity}, and
// any entity's {owner,assignee} when merging users.
func fkTargets(t domain.EntityType) []fkTarget {
	switch t {
	case domain.EntityContact:
		return []fkTarget{
			{domain.EntityOpportunity.CollectionName(), "contact_id"},
			{domain.EntityActivity.CollectionName(), "contact_id"},
		}
	case domain.EntityAccount:
		return []fkTarget{
			{domain.EntityContact.CollectionName(), "account_id"},
			{domain.EntityOpportunity.CollectionName(), "account_id"},
			{domain.EntityActivity.CollectionName(), "account_id"},
		}
	case domain.EntityOpportunity:
		return []fkTarget{
			{domain.EntityActivity.CollectionName(), "opportunity_id"},
		}
	case domain.EntityUser:
		targets := make([]fkTarget, 0, 8)
		for _, t := range []domain.EntityType{domain.EntityContact, domain.EntityAccount, domain.EntityOpportunity, domain.EntityActivity} {
			targets = append(targets, fkTarget{t.CollectionName(), "owner_id"}, fkTarget{t.CollectionName(), "assigned_to"})
		}
		return targets
	default:
		return nil
	}
}

// Merge combines secondaryID into primaryID for entityType: the surviving
// primary gains the union of both entities' SourceRefs (deduped by
// (source, source-id)) and every foreign-key reference to secondaryID
// across other entity collections is rewritten to primaryID. The whole
// operation runs inside a MongoDB transaction so a failure partway through
// the reference rewrites leaves both entities untouched and reports
// failure; the secondary is deleted only after every rewrite succeeds.
func (z *Zone) Merge(ctx context.Context, entityType domain.EntityType, primaryID, secondaryID uuid.UUID) (uuid.UUID, error) {
	if primaryID == secondaryID {
		return uuid.Nil, errors.ErrValidation("cannot merge an entity with itself")
	}

	err := z.store.Transaction(ctx, func(sessCtx mongo.SessionContext) error {
		secondary, err := z.RawEnvelopeByID(sessCtx, entityType, secondaryID)
		if err != nil {
			return err
		}
		primary, err := z.RawEnvelopeByID(sessCtx, entityType, primaryID)
		if err != nil {
			return err
		}

		merged := append([]domain.SourceRef{}, primary.Sources...)
		for _, ref := range secondary.Sources {
			dup := false
			for _, existing := range merged {
				if existing.Equal(ref) {
					dup = true
					break
				}
			}
			if !dup {
				merged = append(merged, ref)
			}
		}

		coll := z.collection(entityType)
		_, err = coll.UpdateOne(sessCtx,
			bson.M{"_id": primaryID},
			bson.M{"$set": bson.M{"sources": merged}, "$inc": bson.M{"version": 1}},
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStoreError, "merge source union failed")
		}

		for _, target := range fkTargets(entityType) {
			targetColl := z.store.Collection(target.Collection)
			_, err := targetColl.UpdateMany(sessCtx,
				bson.M{target.Field: secondaryID},
				bson.M{"$set": bson.M{target.Field: primaryID}},
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeStoreError, "merge reference rewrite failed on "+target.Collection+"."+target.Field)
			}
		}

		if _, err := coll.DeleteOne(sessCtx, bson.M{"_id": secondaryID}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStoreError, "merge secondary delete failed")
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return primaryID, nil
}

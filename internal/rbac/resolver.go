// Package rbac implements the visibility resolver: it turns (user, role,
// scope, team, department) into a store-level filter predicate consumed by
// the canonical and serving zones.
package rbac

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

// CallerContext is the transport-agnostic identity the external
// collaborator passes in on every query.
type CallerContext struct {
	UserID       uuid.UUID
	Role         string
	Scope        domain.VisibilityScope
	TeamIDs      []uuid.UUID
	DepartmentID *uuid.UUID
}

// ownPredicate is the predicate every scope falls back to: the caller is
// the owner or the assignee.
func ownPredicate(userID uuid.UUID) bson.M {
	return bson.M{"$or": []bson.M{
		{"owner_id": userID},
		{"assigned_to": userID},
	}}
}

// Resolve builds the visibility predicate for a caller context.
// `department` falls back to `own` when DepartmentID is nil; `team` falls
// back to `own` when TeamIDs is empty; `all` is unrestricted.
func Resolve(ctx CallerContext) bson.M {
	switch ctx.Scope {
	case domain.ScopeAll:
		return bson.M{}
	case domain.ScopeDepartment:
		if ctx.DepartmentID == nil {
			return ownPredicate(ctx.UserID)
		}
		return bson.M{"$or": []bson.M{
			{"owner_id": ctx.UserID},
			{"department_id": *ctx.DepartmentID},
		}}
	case domain.ScopeTeam:
		if len(ctx.TeamIDs) == 0 {
			return ownPredicate(ctx.UserID)
		}
		return bson.M{"$or": []bson.M{
			{"owner_id": ctx.UserID},
			{"team_id": bson.M{"$in": ctx.TeamIDs}},
		}}
	case domain.ScopeOwn:
		fallthrough
	default:
		return ownPredicate(ctx.UserID)
	}
}

// Intersect combines a visibility predicate with a caller-supplied extra
// query using AND at the top level, preserving any internal disjunctions by
// nesting rather than flattening them into a single $or that would widen
// visibility.
func Intersect(visibility, extra bson.M) bson.M {
	if len(extra) == 0 {
		return visibility
	}
	if len(visibility) == 0 {
		return extra
	}
	return bson.M{"$and": []bson.M{visibility, extra}}
}

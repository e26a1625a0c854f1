package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

func TestResolveAll(t *testing.T) {
	ctx := CallerContext{UserID: uuid.New(), Scope: domain.ScopeAll}
	assert.Empty(t, Resolve(ctx))
}

func TestResolveOwn(t *testing.T) {
	userID := uuid.New()
	predicate := Resolve(CallerContext{UserID: userID, Scope: domain.ScopeOwn})

	clauses, ok := predicate["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 2)
	assert.Equal(t, userID, clauses[0]["owner_id"])
	assert.Equal(t, userID, clauses[1]["assigned_to"])
}

func TestResolveTeam(t *testing.T) {
	userID := uuid.New()
	teamA, teamB := uuid.New(), uuid.New()
	predicate := Resolve(CallerContext{
		UserID: userID, Scope: domain.ScopeTeam, TeamIDs: []uuid.UUID{teamA, teamB},
	})

	clauses, ok := predicate["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 2)
	assert.Equal(t, userID, clauses[0]["owner_id"])
	assert.Equal(t, bson.M{"$in": []uuid.UUID{teamA, teamB}}, clauses[1]["team_id"])
}

func TestResolveTeamFallsBackToOwn(t *testing.T) {
	userID := uuid.New()
	predicate := Resolve(CallerContext{UserID: userID, Scope: domain.ScopeTeam})
	assert.Equal(t, Resolve(CallerContext{UserID: userID, Scope: domain.ScopeOwn}), predicate)
}

func TestResolveDepartment(t *testing.T) {
	userID, deptID := uuid.New(), uuid.New()
	predicate := Resolve(CallerContext{
		UserID: userID, Scope: domain.ScopeDepartment, DepartmentID: &deptID,
	})

	clauses, ok := predicate["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 2)
	assert.Equal(t, deptID, clauses[1]["department_id"])
}

func TestResolveDepartmentFallsBackToOwn(t *testing.T) {
	userID := uuid.New()
	predicate := Resolve(CallerContext{UserID: userID, Scope: domain.ScopeDepartment})
	assert.Equal(t, Resolve(CallerContext{UserID: userID, Scope: domain.ScopeOwn}), predicate)
}

func TestResolveUnknownScopeDefaultsToOwn(t *testing.T) {
	userID := uuid.New()
	predicate := Resolve(CallerContext{UserID: userID, Scope: "everything"})
	assert.Equal(t, Resolve(CallerContext{UserID: userID, Scope: domain.ScopeOwn}), predicate)
}

// Intersect must AND the two predicates at the top level, never splicing a
// caller's $or clauses into the visibility predicate's own $or — that would
// widen what the caller can see.
func TestIntersectNestsDisjunctions(t *testing.T) {
	userID := uuid.New()
	visibility := Resolve(CallerContext{UserID: userID, Scope: domain.ScopeOwn})
	extra := bson.M{"$or": []bson.M{{"stage": "lead"}, {"stage": "proposal"}}}

	combined := Intersect(visibility, extra)
	and, ok := combined["$and"].([]bson.M)
	require.True(t, ok, "expected a top-level $and, got %v", combined)
	require.Len(t, and, 2)
	assert.Equal(t, visibility, and[0])
	assert.Equal(t, extra, and[1])
	// The visibility disjunction survives unmodified inside the conjunction.
	assert.Len(t, and[0]["$or"], 2)
}

func TestIntersectEmptySides(t *testing.T) {
	visibility := bson.M{"owner_id": uuid.New()}
	assert.Equal(t, visibility, Intersect(visibility, bson.M{}))
	extra := bson.M{"is_active": true}
	assert.Equal(t, extra, Intersect(bson.M{}, extra))
}

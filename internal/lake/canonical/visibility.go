package canonical

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/rbac"
)

// FindWithVisibility intersects the caller's rbac visibility predicate with
// extraQuery using AND semantics (never flattening the two into a single
// widening $or) and decodes the matches into out (a pointer to a slice of a
// concrete canonical entity type). The result never holds a document outside
// the caller's visibility predicate. A wider scope does not always return a
// superset: the team and department predicates do not match on assigned_to,
// so a document visible under "own" only through assigned_to is not returned
// under those scopes.
func (z *Zone) FindWithVisibility(ctx context.Context, entityType domain.EntityType, caller rbac.CallerContext, extraQuery bson.M, limit, skip int64, sort bson.D, out interface{}) error {
	visibility := rbac.Resolve(caller)
	query := rbac.Intersect(visibility, extraQuery)
	return z.Find(ctx, entityType, query, limit, skip, sort, out)
}

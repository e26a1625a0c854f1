package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

func TestCallerContext(t *testing.T) {
	userID := uuid.New()
	teamA, teamB := uuid.New(), uuid.New()
	deptID := uuid.New()

	r := httptest.NewRequest("GET", "/api/v1/entities/opportunity", nil)
	r.Header.Set("X-User-ID", userID.String())
	r.Header.Set("X-User-Role", "sales_manager")
	r.Header.Set("X-Visibility-Scope", "team")
	r.Header.Set("X-Team-IDs", teamA.String()+", "+teamB.String())
	r.Header.Set("X-Department-ID", deptID.String())

	caller, err := callerContext(r)
	require.NoError(t, err)
	assert.Equal(t, userID, caller.UserID)
	assert.Equal(t, "sales_manager", caller.Role)
	assert.Equal(t, domain.ScopeTeam, caller.Scope)
	assert.Equal(t, []uuid.UUID{teamA, teamB}, caller.TeamIDs)
	require.NotNil(t, caller.DepartmentID)
	assert.Equal(t, deptID, *caller.DepartmentID)
}

func TestCallerContextDefaultsToOwn(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-User-ID", uuid.New().String())

	caller, err := callerContext(r)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeOwn, caller.Scope)
	assert.Empty(t, caller.TeamIDs)
	assert.Nil(t, caller.DepartmentID)
}

func TestCallerContextRejectsMissingUser(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := callerContext(r)
	assert.Error(t, err)
}

func TestCallerContextRejectsMalformedTeamID(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-User-ID", uuid.New().String())
	r.Header.Set("X-Team-IDs", "not-a-uuid")
	_, err := callerContext(r)
	assert.Error(t, err)
}

func TestEntitySliceCoversAllTypes(t *testing.T) {
	for _, entityType := range []domain.EntityType{
		domain.EntityContact, domain.EntityAccount, domain.EntityOpportunity,
		domain.EntityActivity, domain.EntityUser,
	} {
		_, ok := entitySlice(entityType)
		assert.True(t, ok, entityType)
		_, ok = entityValue(entityType)
		assert.True(t, ok, entityType)
	}
	_, ok := entitySlice("pipeline")
	assert.False(t, ok)
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTransitions(t *testing.T) {
	open := []Stage{StageLead, StageQualification, StageDiscovery, StageProposal, StageNegotiation}
	closed := []Stage{StageClosedWon, StageClosedLost}

	for _, from := range open {
		for _, to := range append(open, closed...) {
			assert.True(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	for _, from := range closed {
		for _, to := range append(open, closed...) {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestAddStageChange(t *testing.T) {
	ref := SourceRef{Source: "odoo", SourceID: "7"}
	opp := &Opportunity{Envelope: NewEnvelope(EntityOpportunity, ref), Stage: StageProposal}
	userID := uuid.New()

	opp.AddStageChange(StageNegotiation, &userID)
	require.Len(t, opp.StageHistory, 1)
	assert.Equal(t, StageProposal, opp.StageHistory[0].From)
	assert.Equal(t, StageNegotiation, opp.StageHistory[0].To)
	assert.Equal(t, &userID, opp.StageHistory[0].ChangedBy)
	assert.False(t, opp.IsClosed)

	opp.AddStageChange(StageClosedWon, &userID)
	require.Len(t, opp.StageHistory, 2)
	assert.Equal(t, StageNegotiation, opp.StageHistory[1].From)
	assert.True(t, opp.IsClosed)
	assert.True(t, opp.IsWon)
	assert.NotNil(t, opp.ActualCloseDate)
}

func TestActivityOverdueUpcomingPartition(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	in3Days := now.AddDate(0, 0, 3)
	in8Days := now.AddDate(0, 0, 8)

	tests := []struct {
		name     string
		status   ActivityStatus
		due      *time.Time
		overdue  bool
		upcoming bool
	}{
		{"past due pending", ActivityStatusPending, &yesterday, true, false},
		{"past due completed", ActivityStatusCompleted, &yesterday, false, false},
		{"due inside the window", ActivityStatusPending, &in3Days, false, true},
		{"due past the window", ActivityStatusPending, &in8Days, false, false},
		{"due exactly now", ActivityStatusPending, &now, false, true},
		{"no due date", ActivityStatusPending, nil, false, false},
		{"completed in window", ActivityStatusCompleted, &in3Days, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Activity{Status: tt.status, DueDate: tt.due}
			assert.Equal(t, tt.overdue, a.IsOverdue(now), "overdue")
			assert.Equal(t, tt.upcoming, a.IsUpcoming(now), "upcoming")
			// The two sets are disjoint.
			assert.False(t, a.IsOverdue(now) && a.IsUpcoming(now))
		})
	}
}

func TestMergeSourceRefsDedupes(t *testing.T) {
	env := NewEnvelope(EntityContact, SourceRef{Source: "salesforce", SourceID: "c1"})
	env.MergeSourceRefs([]SourceRef{
		{Source: "salesforce", SourceID: "c1", SourceModel: "Contact"},
		{Source: "odoo", SourceID: "42"},
		{Source: "odoo", SourceID: "42"},
	})
	require.Len(t, env.Sources, 2)
	assert.Equal(t, "salesforce", env.Sources[0].Source)
	assert.Equal(t, "odoo", env.Sources[1].Source)
}

func TestEnvelopeUnresolvedRefs(t *testing.T) {
	env := NewEnvelope(EntityOpportunity, SourceRef{Source: "odoo", SourceID: "9"})
	env.SetUnresolvedRef("account_id", "17")
	env.SetUnresolvedRef("owner_id", "")
	assert.Equal(t, map[string]string{"account_id": "17"}, env.UnresolvedRefs)
}

func TestNewForType(t *testing.T) {
	ref := SourceRef{Source: "local", SourceID: "x"}
	for _, entityType := range []EntityType{EntityContact, EntityAccount, EntityOpportunity, EntityActivity, EntityUser} {
		entity := NewForType(entityType, ref)
		require.NotNil(t, entity, entityType)
		env := entity.GetEnvelope()
		assert.Equal(t, entityType, env.EntityType)
		assert.Equal(t, 1, env.Version)
		require.Len(t, env.Sources, 1)
		assert.Equal(t, ref, env.Sources[0])
	}
	assert.Nil(t, NewForType("department", ref))
}

func TestRawCollectionName(t *testing.T) {
	assert.Equal(t, "raw_odoo_contacts", RawCollectionName("odoo", EntityContact))
	assert.Equal(t, "raw_salesforce_opportunitys", RawCollectionName("salesforce", EntityOpportunity))
}

func TestBatchAppendErrorBounded(t *testing.T) {
	batch := &SyncBatch{}
	for i := 0; i < MaxBatchErrors+10; i++ {
		batch.AppendError("id", "stage", "boom")
	}
	assert.Len(t, batch.Errors, MaxBatchErrors)
}

func TestTouchIncrementsVersion(t *testing.T) {
	env := NewEnvelope(EntityAccount, SourceRef{Source: "odoo", SourceID: "1"})
	before := env.UpdatedAt
	userID := uuid.New()
	env.Touch(&userID)
	assert.Equal(t, 2, env.Version)
	assert.Equal(t, &userID, env.UpdatedBy)
	assert.False(t, env.UpdatedAt.Before(before))
}

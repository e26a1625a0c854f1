package crm

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
)

type stubRegistry struct {
	mappings []mapping.FieldMapping
}

func (s *stubRegistry) Resolve(ctx context.Context, integration string, entityType domain.EntityType) ([]mapping.FieldMapping, error) {
	return s.mappings, nil
}

func TestMapToRawRequiresID(t *testing.T) {
	m := NewMapper(domain.EntityContact, &stubRegistry{})
	_, err := m.MapToRaw(map[string]interface{}{"Name": "no id"}, uuid.New())
	assert.Error(t, err)

	rec, err := m.MapToRaw(map[string]interface{}{"Id": "003xx000004TmiQ"}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "003xx000004TmiQ", rec.SourceID)
	assert.Equal(t, SourceName, rec.Source)
}

func TestMapToCanonicalContactNameAssembly(t *testing.T) {
	m := NewMapper(domain.EntityContact, &stubRegistry{})
	raw, err := m.MapToRaw(map[string]interface{}{
		"Id":               "003xx1",
		"FirstName":        "Jordan",
		"LastName":         "Lee",
		"Email":            "JLee@Example.com",
		"AccountId":        "001xx9",
		"OwnerId":          "005xx2",
		"MailingCity":      "Singapore",
		"LastModifiedDate": "2024-07-15T10:00:00.000+0000",
	}, uuid.New())
	require.NoError(t, err)

	entity, err := m.MapToCanonical(context.Background(), raw)
	require.NoError(t, err)
	contact := entity.(*domain.Contact)

	// Name is assembled from FirstName + LastName when Name is absent.
	assert.Equal(t, "Jordan Lee", contact.Name)
	assert.Equal(t, "Singapore", contact.Address.City)
	assert.Equal(t, "001xx9", contact.UnresolvedRefs["account_id"])
	assert.Equal(t, "005xx2", contact.UnresolvedRefs["owner_id"])
	require.Len(t, contact.Sources, 1)
	assert.Equal(t, "Contact", contact.Sources[0].SourceModel)
}

func TestMapStageName(t *testing.T) {
	tests := map[string]domain.Stage{
		"Prospecting":          domain.StageLead,
		"Qualification":        domain.StageQualification,
		"Needs Analysis":       domain.StageDiscovery,
		"Proposal/Price Quote": domain.StageProposal,
		"Negotiation/Review":   domain.StageNegotiation,
		"Closed Won":           domain.StageClosedWon,
		"Closed Lost":          domain.StageClosedLost,
		"Custom Won Stage":     domain.StageClosedWon,
		"Totally Custom":       domain.StageLead,
	}
	for name, want := range tests {
		assert.Equal(t, want, mapStageName(name), name)
	}
}

func TestMapToCanonicalActivityWhatIDRouting(t *testing.T) {
	m := NewMapper(domain.EntityActivity, &stubRegistry{})

	raw, err := m.MapToRaw(map[string]interface{}{
		"Id":      "00Txx1",
		"Subject": "Call about renewal",
		"Status":  "In Progress",
		"WhoId":   "003xx1",
		"WhatId":  "006xx5",
	}, uuid.New())
	require.NoError(t, err)

	entity, err := m.MapToCanonical(context.Background(), raw)
	require.NoError(t, err)
	activity := entity.(*domain.Activity)

	assert.Equal(t, domain.ActivityStatusInProgress, activity.Status)
	assert.Equal(t, "003xx1", activity.UnresolvedRefs["contact_id"])
	// 006-prefixed WhatId is an opportunity reference.
	assert.Equal(t, "006xx5", activity.UnresolvedRefs["opportunity_id"])
	assert.Empty(t, activity.UnresolvedRefs["account_id"])
}

func TestMapAccountType(t *testing.T) {
	assert.Equal(t, string(domain.AccountTypeProspect), mapAccountType("Prospect"))
	assert.Equal(t, string(domain.AccountTypePartner), mapAccountType("Technology Partner"))
	assert.Equal(t, string(domain.AccountTypeCompetitor), mapAccountType("Competitor"))
	assert.Equal(t, string(domain.AccountTypeCustomer), mapAccountType("Customer - Direct"))
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery("Opportunity", nil)
	assert.Contains(t, q, "FROM Opportunity")
	assert.Contains(t, q, "ORDER BY SystemModstamp ASC")
	assert.NotContains(t, q, "WHERE")
}

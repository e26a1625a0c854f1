package erp

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
)

// stubRegistry serves canned field mappings without a store.
type stubRegistry struct {
	mappings []mapping.FieldMapping
}

func (s *stubRegistry) Resolve(ctx context.Context, integration string, entityType domain.EntityType) ([]mapping.FieldMapping, error) {
	return s.mappings, nil
}

func TestMapToRaw(t *testing.T) {
	m := NewMapper(domain.EntityContact, &stubRegistry{})
	batchID := uuid.New()

	rec, err := m.MapToRaw(map[string]interface{}{"id": float64(42), "name": "P. Rahman"}, batchID)
	require.NoError(t, err)
	assert.Equal(t, "42", rec.SourceID)
	assert.Equal(t, SourceName, rec.Source)
	assert.Equal(t, batchID, rec.SyncBatchID)
	assert.Equal(t, "P. Rahman", rec.RawData["name"])

	_, err = m.MapToRaw(map[string]interface{}{"name": "no id"}, batchID)
	assert.Error(t, err)
}

func TestMapToCanonicalContact(t *testing.T) {
	m := NewMapper(domain.EntityContact, &stubRegistry{})
	raw, err := m.MapToRaw(map[string]interface{}{
		"id":         float64(42),
		"name":       "P. Rahman",
		"email":      "p@acme.com",
		"phone":      "+60312345678",
		"function":   "Buyer",
		"parent_id":  []interface{}{float64(7), "Acme Corp"},
		"user_id":    []interface{}{float64(3), "J. Lee"},
		"state_id":   []interface{}{float64(1), "Pulau Pinang"},
		"country_id": []interface{}{float64(2), "Malaysia"},
		"active":     true,
		"write_date": "2024-06-01 08:30:00",
	}, uuid.New())
	require.NoError(t, err)

	entity, err := m.MapToCanonical(context.Background(), raw)
	require.NoError(t, err)
	contact := entity.(*domain.Contact)

	assert.Equal(t, "P. Rahman", contact.Name)
	assert.Equal(t, "p@acme.com", contact.Email)
	assert.Equal(t, "Buyer", contact.JobTitle)
	assert.Equal(t, "Acme Corp", contact.CompanyName)
	assert.Equal(t, "Pulau Pinang", contact.Address.State)
	assert.Equal(t, "Malaysia", contact.Address.Country)
	require.Len(t, contact.Sources, 1)
	assert.Equal(t, domain.SourceRef{Source: SourceName, SourceID: "42", SourceModel: "res.partner"}, contact.Sources[0])

	// Relational ids are parked for the normalizer, not dropped.
	assert.Equal(t, "7", contact.UnresolvedRefs["account_id"])
	assert.Equal(t, "3", contact.UnresolvedRefs["owner_id"])

	// The source write_date becomes the canonical updated_at.
	assert.Equal(t, 2024, contact.UpdatedAt.Year())
}

func TestMapToCanonicalOpportunityStages(t *testing.T) {
	m := NewMapper(domain.EntityOpportunity, &stubRegistry{})
	tests := []struct {
		stageName string
		wonStatus string
		want      domain.Stage
	}{
		{"New", "", domain.StageLead},
		{"Qualified", "", domain.StageQualification},
		{"Proposition", "", domain.StageProposal},
		{"Negotiation", "", domain.StageNegotiation},
		{"Anything", "won", domain.StageClosedWon},
		{"Anything", "lost", domain.StageClosedLost},
		{"Mystery Stage", "", domain.StageLead},
	}

	for _, tt := range tests {
		raw, err := m.MapToRaw(map[string]interface{}{
			"id":               float64(9),
			"name":             "Deal",
			"stage_id":         []interface{}{float64(4), tt.stageName},
			"won_status":       tt.wonStatus,
			"probability":      float64(50),
			"expected_revenue": float64(1000),
		}, uuid.New())
		require.NoError(t, err)

		entity, err := m.MapToCanonical(context.Background(), raw)
		require.NoError(t, err)
		opp := entity.(*domain.Opportunity)
		assert.Equal(t, tt.want, opp.Stage, "%s/%s", tt.stageName, tt.wonStatus)
		assert.Equal(t, tt.want.IsClosed(), opp.IsClosed)
	}
}

func TestRegistryMappingWinsOverDefault(t *testing.T) {
	registry := &stubRegistry{mappings: []mapping.FieldMapping{
		{SourceField: "x_custom_name", TargetField: "name", Transform: mapping.TransformDirect},
	}}
	m := NewMapper(domain.EntityAccount, registry)

	raw, err := m.MapToRaw(map[string]interface{}{
		"id":            float64(5),
		"name":          "Default Name",
		"x_custom_name": "Configured Name",
		"active":        true,
	}, uuid.New())
	require.NoError(t, err)

	entity, err := m.MapToCanonical(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Configured Name", entity.(*domain.Account).Name)
}

func TestM2OHelpers(t *testing.T) {
	id, ok := m2oID([]interface{}{float64(12), "Display"})
	assert.True(t, ok)
	assert.Equal(t, "12", id)

	_, ok = m2oID(false)
	assert.False(t, ok)

	name, ok := m2oName([]interface{}{float64(12), "Display"})
	assert.True(t, ok)
	assert.Equal(t, "Display", name)

	_, ok = m2oName([]interface{}{float64(12)})
	assert.False(t, ok)
}

func TestStrValueFalseForEmpty(t *testing.T) {
	// The ERP encodes absent scalars as false.
	assert.Equal(t, "", strValue(false))
	assert.Equal(t, "", strValue(nil))
	assert.Equal(t, "x", strValue("x"))
}

func TestBuildDomainFilters(t *testing.T) {
	contactDomain := buildDomain(domain.EntityContact, nil)
	require.Len(t, contactDomain, 2)
	assert.Equal(t, []interface{}{"is_company", "=", false}, contactDomain[0])

	accountDomain := buildDomain(domain.EntityAccount, nil)
	assert.Equal(t, []interface{}{"is_company", "=", true}, accountDomain[0])
}

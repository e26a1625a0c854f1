package components

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
)

func TestBuildEntityOpportunity(t *testing.T) {
	ref := domain.SourceRef{Source: "odoo", SourceID: "31", SourceModel: "crm.lead"}
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ownerID := uuid.New()

	entity, err := BuildEntity(domain.EntityOpportunity, map[string]interface{}{
		"name":        "Batik wholesale deal",
		"stage":       "negotiation",
		"probability": 60.0,
		"amount":      25000.0,
		"currency":    "MYR",
		"created_at":  created,
		"account_id":  "88",
		"owner_id":    ownerID.String(),
	}, ref)
	require.NoError(t, err)

	opp, ok := entity.(*domain.Opportunity)
	require.True(t, ok)
	assert.Equal(t, "Batik wholesale deal", opp.Name)
	assert.Equal(t, domain.StageNegotiation, opp.Stage)
	assert.Equal(t, 60.0, opp.Probability)
	assert.Equal(t, 25000.0, opp.Amount)
	assert.Equal(t, "MYR", opp.Currency)
	assert.False(t, opp.IsClosed)
	assert.Equal(t, created, opp.CreatedAt)
	require.Len(t, opp.Sources, 1)
	assert.Equal(t, ref, opp.Sources[0])

	// A parseable owner id lands on the typed field; the source-native
	// account id is parked for the normalizer.
	require.NotNil(t, opp.OwnerID)
	assert.Equal(t, ownerID, *opp.OwnerID)
	assert.Nil(t, opp.AccountID)
	assert.Equal(t, "88", opp.UnresolvedRefs["account_id"])
}

func TestBuildEntityClosedStageFlags(t *testing.T) {
	ref := domain.SourceRef{Source: "salesforce", SourceID: "006xx"}
	entity, err := BuildEntity(domain.EntityOpportunity, map[string]interface{}{
		"name": "Won deal", "stage": "closed-won",
	}, ref)
	require.NoError(t, err)
	opp := entity.(*domain.Opportunity)
	assert.True(t, opp.IsClosed)
	assert.True(t, opp.IsWon)
}

func TestBuildEntityContactDefaults(t *testing.T) {
	ref := domain.SourceRef{Source: "salesforce", SourceID: "c9"}
	entity, err := BuildEntity(domain.EntityContact, map[string]interface{}{
		"name":  "P. Rahman",
		"email": "p@acme.com",
		"city":  "Penang",
		"tags":  []interface{}{"vip", "reseller"},
	}, ref)
	require.NoError(t, err)
	contact := entity.(*domain.Contact)
	assert.True(t, contact.IsActive)
	assert.Equal(t, "Penang", contact.Address.City)
	assert.Equal(t, []string{"vip", "reseller"}, contact.Tags)
}

func TestBuildEntityUnknownType(t *testing.T) {
	_, err := BuildEntity("invoice", nil, domain.SourceRef{})
	assert.Error(t, err)
}

func TestApplyRegistryMappingsWinsOverDefaults(t *testing.T) {
	source := SourceRecord{"x_deal_name": "Override", "probability": 90.0}
	fields := map[string]interface{}{"name": "Default", "stage": "lead"}

	err := ApplyRegistryMappings(fields, []mapping.FieldMapping{
		{SourceField: "x_deal_name", TargetField: "name", Transform: mapping.TransformDirect},
		{SourceField: "probability", TargetField: "probability", Transform: mapping.TransformToFloat},
	}, source)
	require.NoError(t, err)
	assert.Equal(t, "Override", fields["name"])
	assert.Equal(t, 90.0, fields["probability"])
	assert.Equal(t, "lead", fields["stage"])
}

func TestApplyRegistryMappingsRequired(t *testing.T) {
	err := ApplyRegistryMappings(map[string]interface{}{}, []mapping.FieldMapping{
		{SourceField: "missing", TargetField: "name", Required: true},
	}, SourceRecord{})
	assert.Error(t, err)

	// A default value satisfies a required mapping.
	fields := map[string]interface{}{}
	err = ApplyRegistryMappings(fields, []mapping.FieldMapping{
		{SourceField: "missing", TargetField: "currency", Required: true, DefaultValue: "USD"},
	}, SourceRecord{})
	require.NoError(t, err)
	assert.Equal(t, "USD", fields["currency"])
}

func TestValidatorRaw(t *testing.T) {
	v := NewEntityValidator()
	assert.Empty(t, v.ValidateRaw(domain.RawRecord{
		Source: "odoo", SourceID: "1", RawData: map[string]interface{}{"id": 1},
	}))

	errs := v.ValidateRaw(domain.RawRecord{})
	assert.Len(t, errs, 3)
}

func TestValidatorCanonical(t *testing.T) {
	v := NewEntityValidator()
	ref := domain.SourceRef{Source: "odoo", SourceID: "1"}

	opp := domain.NewForType(domain.EntityOpportunity, ref).(*domain.Opportunity)
	opp.Name = "Deal"
	opp.Probability = 50
	assert.Empty(t, v.ValidateCanonical(opp))

	opp.Probability = 120
	opp.Amount = -1
	errs := v.ValidateCanonical(opp)
	assert.Len(t, errs, 2)

	contact := domain.NewForType(domain.EntityContact, ref).(*domain.Contact)
	contact.Name = "X"
	contact.Email = "not-an-email"
	errs = v.ValidateCanonical(contact)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "malformed email")

	user := domain.NewForType(domain.EntityUser, ref).(*domain.User)
	user.Name = "U"
	errs = v.ValidateCanonical(user)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "email is required")

	bare := &domain.Account{}
	errs = v.ValidateCanonical(bare)
	assert.Contains(t, errs, "entity carries no source reference")
}

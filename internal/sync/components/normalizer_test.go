package components

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

func TestNormalizeContact(t *testing.T) {
	n := &EntityNormalizer{}
	contact := &domain.Contact{
		Name:   "  Jordan Lee  ",
		Email:  " Jordan.Lee@ACME.com ",
		Phone:  "+60 (3) 1234-5678",
		Mobile: "012-345 6789",
	}
	entity, err := n.Normalize(context.Background(), contact)
	require.NoError(t, err)
	c := entity.(*domain.Contact)
	assert.Equal(t, "Jordan Lee", c.Name)
	assert.Equal(t, "jordan.lee@acme.com", c.Email)
	assert.Equal(t, "+60312345678", c.Phone)
	assert.Equal(t, "0123456789", c.Mobile)
}

func TestNormalizeAccountWebsite(t *testing.T) {
	n := &EntityNormalizer{}
	tests := []struct {
		in, out string
	}{
		{"ACME.com", "https://acme.com"},
		{"http://acme.com", "http://acme.com"},
		{"https://Acme.Com/Sales", "https://acme.com/sales"},
		{"", ""},
	}
	for _, tt := range tests {
		account := &domain.Account{Website: tt.in}
		_, err := n.Normalize(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, tt.out, account.Website, tt.in)
	}
}

func TestNormalizeOpportunityClamps(t *testing.T) {
	n := &EntityNormalizer{}
	opp := &domain.Opportunity{Probability: 140, Amount: -50, Currency: " usd "}
	_, err := n.Normalize(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, 100.0, opp.Probability)
	assert.Equal(t, 0.0, opp.Amount)
	assert.Equal(t, "USD", opp.Currency)

	opp = &domain.Opportunity{Probability: -5}
	_, err = n.Normalize(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, 0.0, opp.Probability)
}

func TestSetRefField(t *testing.T) {
	id := uuid.New()

	opp := &domain.Opportunity{}
	setRefField(opp, "account_id", id)
	setRefField(opp, "contact_id", id)
	setRefField(opp, "owner_id", id)
	require.NotNil(t, opp.AccountID)
	require.NotNil(t, opp.ContactID)
	require.NotNil(t, opp.OwnerID)
	assert.Equal(t, id, *opp.AccountID)

	activity := &domain.Activity{}
	setRefField(activity, "opportunity_id", id)
	setRefField(activity, "assigned_to", id)
	require.NotNil(t, activity.OpportunityID)
	require.NotNil(t, activity.AssignedTo)

	// A field the type does not carry is a no-op.
	contact := &domain.Contact{}
	setRefField(contact, "opportunity_id", id)
	assert.Nil(t, contact.AccountID)
}

func TestIDCacheLRU(t *testing.T) {
	cache := newIDCache(2)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	cache.put("a", a)
	cache.put("b", b)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", c)
	_, ok = cache.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	got, ok := cache.get("a")
	assert.True(t, ok)
	assert.Equal(t, a, got)
	_, ok = cache.get("c")
	assert.True(t, ok)

	cache.reset()
	_, ok = cache.get("a")
	assert.False(t, ok)
}

func TestNaturalKeyOf(t *testing.T) {
	email, name := naturalKeyOf(&domain.Contact{Email: "x@y.com"})
	assert.Equal(t, "x@y.com", email)
	assert.Empty(t, name)

	email, name = naturalKeyOf(&domain.Account{Name: "Acme"})
	assert.Empty(t, email)
	assert.Equal(t, "Acme", name)

	email, name = naturalKeyOf(&domain.Opportunity{Name: "Deal"})
	assert.Empty(t, email)
	assert.Empty(t, name)
}

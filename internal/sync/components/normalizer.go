package components

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/canonical"
	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// refField maps a canonical FK field name to the entity type it references.
var refField = map[string]domain.EntityType{
	"account_id":     domain.EntityAccount,
	"contact_id":     domain.EntityContact,
	"opportunity_id": domain.EntityOpportunity,
	"owner_id":       domain.EntityUser,
	"assigned_to":    domain.EntityUser,
}

// EntityNormalizer is the shared Normalizer implementation, parameterized by
// the source whose ids it resolves. Reference resolution runs through a
// bounded per-worker LRU keyed by (entity type, source id).
type EntityNormalizer struct {
	source    string
	canonical *canonical.Zone
	cache     *idCache
	log       *logger.Logger
}

// NewEntityNormalizer creates a normalizer for one source.
func NewEntityNormalizer(source string, cz *canonical.Zone, cacheSize int, log *logger.Logger) *EntityNormalizer {
	return &EntityNormalizer{source: source, canonical: cz, cache: newIDCache(cacheSize), log: log}
}

// Normalize standardizes string and numeric fields in place. It never fails
// the record.
func (n *EntityNormalizer) Normalize(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	switch e := entity.(type) {
	case *domain.Contact:
		e.Name = strings.TrimSpace(e.Name)
		e.Email = normalizeEmail(e.Email)
		e.Phone = normalizePhone(e.Phone)
		e.Mobile = normalizePhone(e.Mobile)
		e.JobTitle = strings.TrimSpace(e.JobTitle)
	case *domain.Account:
		e.Name = strings.TrimSpace(e.Name)
		e.Website = normalizeWebsite(e.Website)
		if e.EmployeeCount != nil && *e.EmployeeCount < 0 {
			zero := 0
			e.EmployeeCount = &zero
		}
	case *domain.Opportunity:
		e.Name = strings.TrimSpace(e.Name)
		e.Probability = clampRange(e.Probability, 0, 100)
		if e.Amount < 0 {
			e.Amount = 0
		}
		e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	case *domain.Activity:
		e.Subject = strings.TrimSpace(e.Subject)
	case *domain.User:
		e.Name = strings.TrimSpace(e.Name)
		e.Email = normalizeEmail(e.Email)
	}
	return entity, nil
}

// Deduplicate looks up an existing entity first by the entity's own
// SourceRefs, then by cross-source natural key. On a hit it copies the
// existing document's identity (id, created-at, created-by) onto entity and
// merges the existing SourceRefs in, keeping the existing id, and reports
// true. When the two lookups match two different documents the record fails
// with a dedup conflict; nothing is merged automatically.
func (n *EntityNormalizer) Deduplicate(ctx context.Context, entity domain.Entity) (bool, error) {
	env := entity.GetEnvelope()

	var byRef *canonical.EnvelopeDoc
	for _, ref := range env.Sources {
		doc, found, err := n.canonical.EnvelopeBySource(ctx, env.EntityType, ref.Source, ref.SourceID)
		if err != nil {
			return false, err
		}
		if found {
			byRef = doc
			break
		}
	}

	email, name := naturalKeyOf(entity)
	byKey, keyFound, err := n.canonical.EnvelopeByNaturalKey(ctx, env.EntityType, email, name)
	if err != nil {
		return false, err
	}

	if byRef != nil && keyFound && byKey.ID != byRef.ID {
		return false, errors.New(errors.ErrCodeDedupConflict,
			"source ref and natural key match two different entities: "+byRef.ID.String()+" vs "+byKey.ID.String())
	}

	existing := byRef
	if existing == nil && keyFound {
		existing = byKey
	}
	if existing == nil {
		return false, nil
	}

	env.ID = existing.ID
	env.CreatedAt = existing.CreatedAt
	env.CreatedBy = existing.CreatedBy
	// Existing refs first, then the new observation's — the surviving order
	// reflects first-seen provenance.
	incoming := env.Sources
	env.Sources = append([]domain.SourceRef{}, existing.Sources...)
	env.MergeSourceRefs(incoming)
	return true, nil
}

// ResolveReferences drains the entity's unresolved source-native foreign
// keys, rewriting each to a canonical id when this source has already synced
// the target. Unresolved entries stay on the entity as source ids.
func (n *EntityNormalizer) ResolveReferences(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	env := entity.GetEnvelope()
	for field, sourceID := range env.UnresolvedRefs {
		targetType, ok := refField[field]
		if !ok {
			continue
		}
		id, found, err := n.resolveID(ctx, targetType, sourceID)
		if err != nil {
			return entity, err
		}
		if !found {
			continue
		}
		setRefField(entity, field, id)
		delete(env.UnresolvedRefs, field)
	}
	if len(env.UnresolvedRefs) == 0 {
		env.UnresolvedRefs = nil
	}
	return entity, nil
}

// ResetCache flushes the id-resolution cache at batch boundaries on full
// syncs.
func (n *EntityNormalizer) ResetCache() {
	n.cache.reset()
}

func (n *EntityNormalizer) resolveID(ctx context.Context, targetType domain.EntityType, sourceID string) (uuid.UUID, bool, error) {
	key := string(targetType) + ":" + sourceID
	if id, ok := n.cache.get(key); ok {
		return id, true, nil
	}
	id, found, err := n.canonical.IDBySource(ctx, targetType, n.source, sourceID)
	if err != nil || !found {
		return uuid.Nil, false, err
	}
	n.cache.put(key, id)
	return id, true, nil
}

// setRefField writes a resolved canonical id into the entity's typed FK
// field. owner/assignee live on the envelope; the rest are per-type.
func setRefField(entity domain.Entity, field string, id uuid.UUID) {
	env := entity.GetEnvelope()
	switch field {
	case "owner_id":
		env.OwnerID = &id
		return
	case "assigned_to":
		env.AssignedTo = &id
		return
	}
	switch e := entity.(type) {
	case *domain.Contact:
		if field == "account_id" {
			e.AccountID = &id
		}
	case *domain.Opportunity:
		switch field {
		case "account_id":
			e.AccountID = &id
		case "contact_id":
			e.ContactID = &id
		}
	case *domain.Activity:
		switch field {
		case "account_id":
			e.AccountID = &id
		case "contact_id":
			e.ContactID = &id
		case "opportunity_id":
			e.OpportunityID = &id
		}
	}
}

func naturalKeyOf(entity domain.Entity) (email, name string) {
	switch e := entity.(type) {
	case *domain.Contact:
		return e.Email, ""
	case *domain.User:
		return e.Email, ""
	case *domain.Account:
		return "", e.Name
	}
	return "", ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone keeps digits and a leading plus, dropping separators and
// extensions punctuation.
func normalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phone {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeWebsite lower-cases and completes the scheme.
func normalizeWebsite(website string) string {
	if website == "" {
		return ""
	}
	w := strings.ToLower(strings.TrimSpace(website))
	if !strings.HasPrefix(w, "http://") && !strings.HasPrefix(w, "https://") {
		w = "https://" + w
	}
	return w
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

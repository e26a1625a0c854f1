// Package domain defines the canonical entity model shared by the data lake's
// three zones: the common envelope every canonical entity carries, the
// per-type payloads, and the tagged-discriminator lookup used to dispatch on
// entity type without runtime classes.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the tagged discriminator carried by every canonical entity.
type EntityType string

const (
	EntityContact     EntityType = "contact"
	EntityAccount     EntityType = "account"
	EntityOpportunity EntityType = "opportunity"
	EntityActivity    EntityType = "activity"
	EntityUser        EntityType = "user"
)

// Valid reports whether t is one of the known canonical entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityContact, EntityAccount, EntityOpportunity, EntityActivity, EntityUser:
		return true
	}
	return false
}

// CollectionName returns the canonical_<entity-type>s collection name.
func (t EntityType) CollectionName() string {
	return "canonical_" + string(t) + "s"
}

// SourceRef identifies one source-system record. The pair (Source, SourceID)
// is unique across all SourceRefs of a given entity type.
type SourceRef struct {
	Source      string `json:"source" bson:"source"`
	SourceID    string `json:"source_id" bson:"source_id"`
	SourceModel string `json:"source_model,omitempty" bson:"source_model,omitempty"`
}

// Equal reports whether two SourceRefs identify the same source record,
// ignoring SourceModel which is informational only.
func (s SourceRef) Equal(other SourceRef) bool {
	return s.Source == other.Source && s.SourceID == other.SourceID
}

// LocalSource is the source name stamped on entities created directly by the
// external collaborator (e.g. a user editing an opportunity in the UI)
// rather than observed from a sync pipeline.
const LocalSource = "local"

// Envelope carries the fields common to every canonical entity: identity,
// timestamps, provenance, and ownership/scoping. Each concrete entity type
// embeds Envelope rather than inheriting from a base class.
type Envelope struct {
	ID         uuid.UUID   `json:"id" bson:"_id"`
	EntityType EntityType  `json:"entity_type" bson:"entity_type"`
	CreatedAt  time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" bson:"updated_at"`
	CreatedBy  *uuid.UUID  `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedBy  *uuid.UUID  `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	Version    int         `json:"version" bson:"version"`
	Sources    []SourceRef `json:"sources" bson:"sources"`

	OwnerID      *uuid.UUID `json:"owner_id,omitempty" bson:"owner_id,omitempty"`
	AssignedTo   *uuid.UUID `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	TeamID       *uuid.UUID `json:"team_id,omitempty" bson:"team_id,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty" bson:"department_id,omitempty"`

	// UnresolvedRefs holds source-native foreign keys that could not (yet) be
	// rewritten to canonical ids, keyed by the canonical field name (e.g.
	// "account_id" -> an ERP partner id). The normalizer drains entries it
	// manages to resolve; whatever remains is tolerated and preserved so a
	// later sync or replay can pick it up.
	UnresolvedRefs map[string]string `json:"unresolved_refs,omitempty" bson:"unresolved_refs,omitempty"`
}

// NewEnvelope creates a fresh envelope for a first observation of an entity.
func NewEnvelope(entityType EntityType, ref SourceRef) Envelope {
	now := time.Now().UTC()
	return Envelope{
		ID:         uuid.New(),
		EntityType: entityType,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
		Sources:    []SourceRef{ref},
	}
}

// HasSourceRef reports whether the envelope already carries the given ref.
func (e *Envelope) HasSourceRef(ref SourceRef) bool {
	for _, s := range e.Sources {
		if s.Equal(ref) {
			return true
		}
	}
	return false
}

// MergeSourceRefs appends any refs from other not already present, deduped
// by (source, source_id).
func (e *Envelope) MergeSourceRefs(other []SourceRef) {
	for _, ref := range other {
		if !e.HasSourceRef(ref) {
			e.Sources = append(e.Sources, ref)
		}
	}
}

// SetUnresolvedRef records a source-native foreign key for field, to be
// resolved (or carried) by the normalizer.
func (e *Envelope) SetUnresolvedRef(field, sourceID string) {
	if sourceID == "" {
		return
	}
	if e.UnresolvedRefs == nil {
		e.UnresolvedRefs = make(map[string]string)
	}
	e.UnresolvedRefs[field] = sourceID
}

// Touch bumps the version and refreshes UpdatedAt/UpdatedBy.
func (e *Envelope) Touch(userID *uuid.UUID) {
	e.UpdatedAt = time.Now().UTC()
	e.Version++
	if userID != nil {
		e.UpdatedBy = userID
	}
}

// Entity is implemented by every concrete canonical entity type, giving
// store code a uniform way to reach the envelope without reflection.
type Entity interface {
	GetEnvelope() *Envelope
}

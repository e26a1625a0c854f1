// Package mapping implements the field-mapping registry: an
// admin-configurable, per-(integration, entity-type) ordered list of field
// mappings that a mapper consults before falling back to its own built-in
// defaults.
package mapping

import (
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

// Transform names one of the supported field-transform kinds.
type Transform string

const (
	TransformDirect      Transform = "direct"
	TransformExtractID   Transform = "extract-id"
	TransformExtractName Transform = "extract-name"
	TransformToString    Transform = "to-string"
	TransformToFloat     Transform = "to-float"
	TransformToInt       Transform = "to-int"
	TransformBoolean     Transform = "boolean"
	TransformLookup      Transform = "lookup"
	TransformFormat      Transform = "format"
	TransformConcatenate Transform = "concatenate"
	TransformDefault     Transform = "default"
)

// FieldMapping is one source-field -> target-field rule within a mapping
// document.
type FieldMapping struct {
	SourceField     string                 `json:"source_field" bson:"source_field"`
	TargetField     string                 `json:"target_field" bson:"target_field"`
	Transform       Transform              `json:"transform" bson:"transform"`
	TransformConfig map[string]interface{} `json:"transform_config,omitempty" bson:"transform_config,omitempty"`
	Required        bool                   `json:"required,omitempty" bson:"required,omitempty"`
	DefaultValue    interface{}            `json:"default_value,omitempty" bson:"default_value,omitempty"`
}

// Document is the persisted `field_mappings` collection document: the
// ordered mapping list for one (integration, entity-type) pair.
type Document struct {
	ID          string         `json:"id" bson:"_id"`
	Integration string         `json:"integration" bson:"integration"`
	EntityType  domain.EntityType `json:"entity_type" bson:"entity_type"`
	Mappings    []FieldMapping `json:"mappings" bson:"mappings"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
}

func documentID(integration string, entityType domain.EntityType) string {
	return integration + ":" + string(entityType)
}

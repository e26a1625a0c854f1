package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDirect(t *testing.T) {
	data := map[string]interface{}{"name": "Acme", "empty": nil}

	v, ok := Apply(FieldMapping{SourceField: "name", Transform: TransformDirect}, data)
	assert.True(t, ok)
	assert.Equal(t, "Acme", v)

	// Empty transform behaves like direct.
	v, ok = Apply(FieldMapping{SourceField: "name"}, data)
	assert.True(t, ok)
	assert.Equal(t, "Acme", v)

	_, ok = Apply(FieldMapping{SourceField: "missing"}, data)
	assert.False(t, ok)
	_, ok = Apply(FieldMapping{SourceField: "empty"}, data)
	assert.False(t, ok)
}

func TestApplyExtractIDAndName(t *testing.T) {
	data := map[string]interface{}{
		"partner_id": []interface{}{float64(42), "Acme Corp"},
		"no_rel":     false,
	}

	id, ok := Apply(FieldMapping{SourceField: "partner_id", Transform: TransformExtractID}, data)
	assert.True(t, ok)
	assert.Equal(t, float64(42), id)

	name, ok := Apply(FieldMapping{SourceField: "partner_id", Transform: TransformExtractName}, data)
	assert.True(t, ok)
	assert.Equal(t, "Acme Corp", name)

	_, ok = Apply(FieldMapping{SourceField: "no_rel", Transform: TransformExtractID}, data)
	assert.False(t, ok)
}

func TestApplyConversions(t *testing.T) {
	data := map[string]interface{}{
		"count":  "12",
		"amount": "99.5",
		"flag":   "true",
		"num":    7,
	}

	v, ok := Apply(FieldMapping{SourceField: "count", Transform: TransformToInt}, data)
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	v, ok = Apply(FieldMapping{SourceField: "amount", Transform: TransformToFloat}, data)
	assert.True(t, ok)
	assert.Equal(t, 99.5, v)

	v, ok = Apply(FieldMapping{SourceField: "flag", Transform: TransformBoolean}, data)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = Apply(FieldMapping{SourceField: "num", Transform: TransformToString}, data)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = Apply(FieldMapping{SourceField: "flag", Transform: TransformToInt}, data)
	assert.False(t, ok)
}

func TestApplyLookup(t *testing.T) {
	fm := FieldMapping{
		SourceField: "stage",
		Transform:   TransformLookup,
		TransformConfig: map[string]interface{}{
			"values": map[string]interface{}{"proposition": "proposal", "won": "closed-won"},
		},
	}
	v, ok := Apply(fm, map[string]interface{}{"stage": "proposition"})
	assert.True(t, ok)
	assert.Equal(t, "proposal", v)

	_, ok = Apply(fm, map[string]interface{}{"stage": "unknown"})
	assert.False(t, ok)
}

func TestApplyFormat(t *testing.T) {
	fm := FieldMapping{
		Transform:       TransformFormat,
		TransformConfig: map[string]interface{}{"template": "{first} {last}"},
	}
	v, ok := Apply(fm, map[string]interface{}{"first": "Jordan", "last": "Lee"})
	assert.True(t, ok)
	assert.Equal(t, "Jordan Lee", v)
}

func TestApplyConcatenate(t *testing.T) {
	fm := FieldMapping{
		Transform: TransformConcatenate,
		TransformConfig: map[string]interface{}{
			"fields":    []interface{}{"city", "country"},
			"separator": ", ",
		},
	}
	v, ok := Apply(fm, map[string]interface{}{"city": "Kuala Lumpur", "country": "Malaysia"})
	assert.True(t, ok)
	assert.Equal(t, "Kuala Lumpur, Malaysia", v)

	// Absent fields are skipped, not rendered empty.
	v, ok = Apply(fm, map[string]interface{}{"country": "Malaysia"})
	assert.True(t, ok)
	assert.Equal(t, "Malaysia", v)

	_, ok = Apply(fm, map[string]interface{}{})
	assert.False(t, ok)
}

func TestApplyDefault(t *testing.T) {
	fm := FieldMapping{Transform: TransformDefault, DefaultValue: "USD"}
	v, ok := Apply(fm, map[string]interface{}{})
	assert.True(t, ok)
	assert.Equal(t, "USD", v)

	_, ok = Apply(FieldMapping{Transform: TransformDefault}, map[string]interface{}{})
	assert.False(t, ok)
}

func TestApplyUnknownTransform(t *testing.T) {
	_, ok := Apply(FieldMapping{SourceField: "x", Transform: "reverse"}, map[string]interface{}{"x": 1})
	assert.False(t, ok)
}

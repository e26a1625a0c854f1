package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Apply runs a single FieldMapping against a decoded source record,
// returning the transformed value and whether it resolved to anything
// (false lets the caller fall back to a built-in default).
func Apply(fm FieldMapping, sourceData map[string]interface{}) (interface{}, bool) {
	switch fm.Transform {
	case TransformDirect, "":
		return direct(sourceData, fm.SourceField)
	case TransformExtractID:
		return extractID(sourceData, fm.SourceField)
	case TransformExtractName:
		return extractName(sourceData, fm.SourceField)
	case TransformToString:
		return toStringValue(sourceData, fm.SourceField)
	case TransformToFloat:
		return toFloat(sourceData, fm.SourceField)
	case TransformToInt:
		return toInt(sourceData, fm.SourceField)
	case TransformBoolean:
		return toBool(sourceData, fm.SourceField)
	case TransformLookup:
		return lookup(sourceData, fm)
	case TransformFormat:
		return format(sourceData, fm)
	case TransformConcatenate:
		return concatenate(sourceData, fm)
	case TransformDefault:
		if fm.DefaultValue != nil {
			return fm.DefaultValue, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func direct(data map[string]interface{}, field string) (interface{}, bool) {
	v, ok := data[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// relPair handles the "[id, display-name]" encoding a relational source
// (e.g. Odoo's many2one XML-RPC fields) uses for a foreign-key reference.
func relPair(data map[string]interface{}, field string) ([]interface{}, bool) {
	v, ok := data[field]
	if !ok || v == nil {
		return nil, false
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) == 0 {
		return nil, false
	}
	return pair, true
}

// extractID pulls the id half of a "[id, display-name]" relational field.
func extractID(data map[string]interface{}, field string) (interface{}, bool) {
	pair, ok := relPair(data, field)
	if !ok {
		return nil, false
	}
	return pair[0], true
}

// extractName pulls the display-name half of a "[id, display-name]" field.
func extractName(data map[string]interface{}, field string) (interface{}, bool) {
	pair, ok := relPair(data, field)
	if !ok || len(pair) < 2 {
		return nil, false
	}
	return pair[1], true
}

func toStringValue(data map[string]interface{}, field string) (interface{}, bool) {
	v, ok := direct(data, field)
	if !ok {
		return nil, false
	}
	return fmt.Sprintf("%v", v), true
}

func toFloat(data map[string]interface{}, field string) (interface{}, bool) {
	v, ok := direct(data, field)
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func toInt(data map[string]interface{}, field string) (interface{}, bool) {
	v, ok := direct(data, field)
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return nil, false
		}
		return i, true
	default:
		return nil, false
	}
}

func toBool(data map[string]interface{}, field string) (interface{}, bool) {
	v, ok := direct(data, field)
	if !ok {
		return nil, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, false
		}
		return parsed, true
	case int:
		return b != 0, true
	default:
		return nil, false
	}
}

// lookup maps a raw value through transform_config["values"], an
// explicit value-mapping table (e.g. source stage name -> canonical stage).
func lookup(data map[string]interface{}, fm FieldMapping) (interface{}, bool) {
	v, ok := direct(data, fm.SourceField)
	if !ok {
		return nil, false
	}
	table, ok := fm.TransformConfig["values"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	key := fmt.Sprintf("%v", v)
	mapped, ok := table[key]
	if !ok {
		return nil, false
	}
	return mapped, true
}

// format renders transform_config["template"] with "{field}" placeholders
// substituted from sourceData.
func format(data map[string]interface{}, fm FieldMapping) (interface{}, bool) {
	tmpl, ok := fm.TransformConfig["template"].(string)
	if !ok {
		return nil, false
	}
	result := tmpl
	for k, v := range data {
		placeholder := "{" + k + "}"
		if strings.Contains(result, placeholder) {
			result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", v))
		}
	}
	return result, true
}

// concatenate joins transform_config["fields"] with transform_config["separator"]
// (default " "), skipping fields absent from sourceData.
func concatenate(data map[string]interface{}, fm FieldMapping) (interface{}, bool) {
	fieldsRaw, ok := fm.TransformConfig["fields"].([]interface{})
	if !ok {
		return nil, false
	}
	sep, ok := fm.TransformConfig["separator"].(string)
	if !ok {
		sep = " "
	}
	parts := make([]string, 0, len(fieldsRaw))
	for _, f := range fieldsRaw {
		fieldName, ok := f.(string)
		if !ok {
			continue
		}
		if v, ok := direct(data, fieldName); ok {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	if len(parts) == 0 {
		return nil, false
	}
	return strings.Join(parts, sep), true
}

package components

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/mapping"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// MappingSource resolves admin-configured field mappings for an
// (integration, entity-type) pair. *mapping.Registry satisfies it; tests
// substitute stubs.
type MappingSource interface {
	Resolve(ctx context.Context, integration string, entityType domain.EntityType) ([]mapping.FieldMapping, error)
}

// BuildEntity constructs a typed canonical entity from a flat map of
// canonical field names to values, stamped with ref. Mappers produce the
// flat map from their built-in defaults, then overlay any registry-
// configured field mappings, so a registry entry always wins.
//
// Foreign-key fields holding a value that does not parse as a canonical id
// are treated as source-native references and parked on the envelope for
// the normalizer to resolve.
func BuildEntity(t domain.EntityType, fields map[string]interface{}, ref domain.SourceRef) (domain.Entity, error) {
	entity := domain.NewForType(t, ref)
	if entity == nil {
		return nil, errors.New(errors.ErrCodeMappingError, "unknown entity type: "+string(t))
	}
	env := entity.GetEnvelope()

	// Source timestamps, when the mapper surfaced them.
	if ts, ok := timeValue(fields["created_at"]); ok {
		env.CreatedAt = ts
	}
	if ts, ok := timeValue(fields["updated_at"]); ok {
		env.UpdatedAt = ts
	}
	applyRef(env, entity, fields, "owner_id")
	applyRef(env, entity, fields, "assigned_to")
	if v, ok := stringValue(fields["team_id"]); ok {
		applyUUIDOrPark(env, entity, "team_id", v)
	}

	switch e := entity.(type) {
	case *domain.Contact:
		e.Name = str(fields, "name")
		e.Email = str(fields, "email")
		e.Phone = str(fields, "phone")
		e.Mobile = str(fields, "mobile")
		e.CompanyName = str(fields, "company_name")
		e.JobTitle = str(fields, "job_title")
		e.Address = addressFrom(fields)
		e.Tags = strSlice(fields, "tags")
		e.IsActive = boolOr(fields, "is_active", true)
		e.Notes = str(fields, "notes")
		applyRef(env, entity, fields, "account_id")
	case *domain.Account:
		e.Name = str(fields, "name")
		e.Website = str(fields, "website")
		e.Industry = str(fields, "industry")
		if v, ok := intValue(fields["employee_count"]); ok {
			e.EmployeeCount = &v
		}
		if v, ok := floatValue(fields["annual_revenue"]); ok {
			e.AnnualRevenue = &v
		}
		e.Address = addressFrom(fields)
		if v := str(fields, "account_type"); v != "" {
			e.AccountType = domain.AccountType(v)
		}
		e.Tier = str(fields, "tier")
		e.Tags = strSlice(fields, "tags")
		e.IsActive = boolOr(fields, "is_active", true)
		if v, ok := floatValue(fields["health_score"]); ok {
			e.HealthScore = &v
		}
		if cf, ok := fields["custom_fields"].(map[string]interface{}); ok {
			e.CustomFields = cf
		}
	case *domain.Opportunity:
		e.Name = str(fields, "name")
		if v := str(fields, "stage"); v != "" {
			e.Stage = domain.Stage(v)
		}
		if v, ok := floatValue(fields["probability"]); ok {
			e.Probability = v
		}
		if v, ok := floatValue(fields["amount"]); ok {
			e.Amount = v
		}
		if v := str(fields, "currency"); v != "" {
			e.Currency = v
		}
		if ts, ok := timeValue(fields["expected_close_date"]); ok {
			e.ExpectedCloseDate = &ts
		}
		if ts, ok := timeValue(fields["actual_close_date"]); ok {
			e.ActualCloseDate = &ts
		}
		e.OpportunityType = str(fields, "opportunity_type")
		e.LeadSource = str(fields, "lead_source")
		e.Priority = str(fields, "priority")
		e.NextStep = str(fields, "next_step")
		e.Competitor = str(fields, "competitor")
		e.LossReason = str(fields, "loss_reason")
		e.IsClosed = e.Stage.IsClosed()
		e.IsWon = e.Stage == domain.StageClosedWon
		applyRef(env, entity, fields, "account_id")
		applyRef(env, entity, fields, "contact_id")
	case *domain.Activity:
		e.Subject = str(fields, "subject")
		if v := str(fields, "activity_type"); v != "" {
			e.ActivityType = domain.ActivityType(v)
		}
		e.Description = str(fields, "description")
		if ts, ok := timeValue(fields["due_date"]); ok {
			e.DueDate = &ts
		}
		if ts, ok := timeValue(fields["start_time"]); ok {
			e.StartTime = &ts
		}
		if ts, ok := timeValue(fields["end_time"]); ok {
			e.EndTime = &ts
		}
		if v, ok := intValue(fields["duration_minutes"]); ok {
			e.DurationMin = v
		}
		if v := str(fields, "status"); v != "" {
			e.Status = domain.ActivityStatus(v)
		}
		e.Priority = str(fields, "priority")
		e.Outcome = str(fields, "outcome")
		e.Notes = str(fields, "notes")
		applyRef(env, entity, fields, "account_id")
		applyRef(env, entity, fields, "contact_id")
		applyRef(env, entity, fields, "opportunity_id")
	case *domain.User:
		e.Email = str(fields, "email")
		e.Name = str(fields, "name")
		if v := str(fields, "auth_provider"); v != "" {
			e.AuthProvider = v
		}
		e.ExternalID = str(fields, "external_id")
		if v := str(fields, "role"); v != "" {
			e.Role = v
		}
		if v := str(fields, "visibility_scope"); v != "" {
			e.VisibilityScope = domain.VisibilityScope(v)
		}
		e.JobTitle = str(fields, "job_title")
		e.IsActive = boolOr(fields, "is_active", true)
	}
	return entity, nil
}

// ApplyRegistryMappings overlays registry-configured field mappings onto
// the mapper's built-in defaults. Required mappings missing from the source
// fall back to their configured default value; a required mapping with no
// value at all is a mapping error.
func ApplyRegistryMappings(fields map[string]interface{}, mappings []mapping.FieldMapping, source SourceRecord) error {
	for _, fm := range mappings {
		value, ok := mapping.Apply(fm, source)
		if !ok {
			if fm.DefaultValue != nil {
				fields[fm.TargetField] = fm.DefaultValue
				continue
			}
			if fm.Required {
				return errors.Newf(errors.ErrCodeMappingError, "required field mapping %s -> %s produced no value", fm.SourceField, fm.TargetField)
			}
			continue
		}
		fields[fm.TargetField] = value
	}
	return nil
}

// applyRef routes a FK field: parseable canonical ids are set directly,
// anything else is parked as an unresolved source-native ref.
func applyRef(env *domain.Envelope, entity domain.Entity, fields map[string]interface{}, field string) {
	v, ok := stringValue(fields[field])
	if !ok || v == "" {
		return
	}
	applyUUIDOrPark(env, entity, field, v)
}

func applyUUIDOrPark(env *domain.Envelope, entity domain.Entity, field, value string) {
	if id, err := uuid.Parse(value); err == nil {
		switch field {
		case "team_id":
			env.TeamID = &id
		default:
			setRefField(entity, field, id)
		}
		return
	}
	env.SetUnresolvedRef(field, value)
}

func addressFrom(fields map[string]interface{}) domain.Address {
	return domain.Address{
		Street:     str(fields, "street"),
		City:       str(fields, "city"),
		State:      str(fields, "state"),
		PostalCode: str(fields, "postal_code"),
		Country:    str(fields, "country"),
	}
}

func str(fields map[string]interface{}, key string) string {
	v, _ := stringValue(fields[key])
	return v
}

func stringValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case float64:
		// JSON numbers decode as float64; source ids are integral.
		return fmt.Sprintf("%.0f", s), true
	case int:
		return fmt.Sprintf("%d", s), true
	case int64:
		return fmt.Sprintf("%d", s), true
	default:
		return "", false
	}
}

func floatValue(v interface{}) (float64, bool) {
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
	}
	return 0, false
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func boolOr(fields map[string]interface{}, key string, fallback bool) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return fallback
}

func timeValue(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t != nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func strSlice(fields map[string]interface{}, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := stringValue(item); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

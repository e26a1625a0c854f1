package erp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
)

// Mapper maps ERP records to canonical entities for one entity type.
// Registry-configured field mappings for (odoo, entity-type) win over the
// built-in defaults below.
type Mapper struct {
	entityType domain.EntityType
	registry   components.MappingSource
}

// NewMapper creates an ERP mapper for one entity type.
func NewMapper(entityType domain.EntityType, registry components.MappingSource) *Mapper {
	return &Mapper{entityType: entityType, registry: registry}
}

// MapToRaw wraps the source record in an immutable raw envelope.
func (m *Mapper) MapToRaw(source components.SourceRecord, batchID uuid.UUID) (domain.RawRecord, error) {
	sourceID, ok := source["id"]
	if !ok || sourceID == nil {
		return domain.RawRecord{}, errors.New(errors.ErrCodeMappingError, "erp record has no id")
	}
	return domain.RawRecord{
		RawID:       uuid.New(),
		Source:      SourceName,
		EntityType:  m.entityType,
		SourceID:    fmt.Sprintf("%v", normalizeID(sourceID)),
		RawData:     source,
		IngestedAt:  time.Now().UTC(),
		SyncBatchID: batchID,
	}, nil
}

// MapToCanonical builds the canonical entity: built-in defaults first, then
// any registry mappings overlaid on top.
func (m *Mapper) MapToCanonical(ctx context.Context, raw domain.RawRecord) (domain.Entity, error) {
	data := raw.RawData
	fields := m.defaultFields(data)

	configured, err := m.registry.Resolve(ctx, SourceName, m.entityType)
	if err != nil {
		return nil, err
	}
	if err := components.ApplyRegistryMappings(fields, configured, data); err != nil {
		return nil, err
	}

	ref := domain.SourceRef{Source: SourceName, SourceID: raw.SourceID, SourceModel: modelMap[m.entityType]}
	return components.BuildEntity(m.entityType, fields, ref)
}

// defaultFields is the built-in ERP field mapping per entity type.
func (m *Mapper) defaultFields(data map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{}
	if ts, ok := parseTime(data["create_date"]); ok {
		fields["created_at"] = ts
	}
	if ts, ok := parseTime(data["write_date"]); ok {
		fields["updated_at"] = ts
	}
	if id, ok := m2oID(data["user_id"]); ok {
		fields["owner_id"] = id
	}
	if id, ok := m2oID(data["team_id"]); ok {
		fields["team_id"] = id
	}

	switch m.entityType {
	case domain.EntityContact:
		fields["name"] = strValue(data["name"])
		fields["email"] = strValue(data["email"])
		fields["phone"] = strValue(data["phone"])
		fields["mobile"] = strValue(data["mobile"])
		fields["job_title"] = strValue(data["function"])
		fields["street"] = strValue(data["street"])
		fields["city"] = strValue(data["city"])
		fields["postal_code"] = strValue(data["zip"])
		fields["notes"] = strValue(data["comment"])
		fields["is_active"] = data["active"] != false
		if name, ok := m2oName(data["state_id"]); ok {
			fields["state"] = name
		}
		if name, ok := m2oName(data["country_id"]); ok {
			fields["country"] = name
		}
		if id, ok := m2oID(data["parent_id"]); ok {
			fields["account_id"] = id
		}
		if name, ok := m2oName(data["parent_id"]); ok {
			fields["company_name"] = name
		}
		fields["tags"] = tagIDs(data["category_id"])
	case domain.EntityAccount:
		fields["name"] = strValue(data["name"])
		fields["website"] = strValue(data["website"])
		fields["street"] = strValue(data["street"])
		fields["city"] = strValue(data["city"])
		fields["postal_code"] = strValue(data["zip"])
		fields["is_active"] = data["active"] != false
		fields["account_type"] = string(domain.AccountTypeCustomer)
		if name, ok := m2oName(data["state_id"]); ok {
			fields["state"] = name
		}
		if name, ok := m2oName(data["country_id"]); ok {
			fields["country"] = name
		}
		if name, ok := m2oName(data["industry_id"]); ok {
			fields["industry"] = name
		}
		if n, ok := data["employee"].(float64); ok {
			fields["employee_count"] = int(n)
		}
		fields["tags"] = tagIDs(data["category_id"])
	case domain.EntityOpportunity:
		fields["name"] = strValue(data["name"])
		stage := mapStage(data)
		fields["stage"] = string(stage)
		fields["probability"] = numValue(data["probability"])
		fields["amount"] = numValue(data["expected_revenue"])
		fields["priority"] = mapPriority(strValue(data["priority"]))
		if ts, ok := parseTime(data["date_deadline"]); ok {
			fields["expected_close_date"] = ts
		}
		if ts, ok := parseTime(data["date_closed"]); ok {
			fields["actual_close_date"] = ts
		}
		if strValue(data["type"]) == "opportunity" {
			fields["opportunity_type"] = "new_business"
		} else {
			fields["opportunity_type"] = "lead"
		}
		if id, ok := m2oID(data["partner_id"]); ok {
			fields["account_id"] = id
		}
		if name, ok := m2oName(data["lost_reason_id"]); ok {
			fields["loss_reason"] = name
		}
	case domain.EntityActivity:
		subject := strValue(data["summary"])
		if subject == "" {
			subject = strValue(data["name"])
		}
		fields["subject"] = subject
		fields["description"] = strValue(data["note"])
		if name, ok := m2oName(data["activity_type_id"]); ok {
			fields["activity_type"] = string(mapActivityType(name))
		} else {
			fields["activity_type"] = string(domain.ActivityTypeTask)
		}
		if ts, ok := parseTime(data["date_deadline"]); ok {
			fields["due_date"] = ts
		}
		fields["status"] = string(mapActivityStatus(strValue(data["state"])))
		if id, ok := m2oID(data["user_id"]); ok {
			fields["assigned_to"] = id
		}
		// Link back to whatever record the activity hangs off.
		resID := normalizeID(data["res_id"])
		switch strValue(data["res_model"]) {
		case "res.partner":
			if resID != nil {
				fields["account_id"] = fmt.Sprintf("%v", resID)
			}
		case "crm.lead":
			if resID != nil {
				fields["opportunity_id"] = fmt.Sprintf("%v", resID)
			}
		}
	case domain.EntityUser:
		email := strValue(data["login"])
		if email == "" {
			email = strValue(data["email"])
		}
		fields["email"] = email
		fields["name"] = strValue(data["name"])
		fields["auth_provider"] = SourceName
		fields["external_id"] = fmt.Sprintf("%v", normalizeID(data["id"]))
		fields["is_active"] = data["active"] != false
	}
	return fields
}

// stageKeywords maps ERP stage-name fragments to canonical stages, checked
// in order.
var stageKeywords = []struct {
	fragment string
	stage    domain.Stage
}{
	{"won", domain.StageClosedWon},
	{"lost", domain.StageClosedLost},
	{"qualif", domain.StageQualification},
	{"propos", domain.StageProposal},
	{"quote", domain.StageProposal},
	{"negoti", domain.StageNegotiation},
	{"discov", domain.StageDiscovery},
	{"new", domain.StageLead},
}

func mapStage(data map[string]interface{}) domain.Stage {
	switch strValue(data["won_status"]) {
	case "won":
		return domain.StageClosedWon
	case "lost":
		return domain.StageClosedLost
	}
	name, ok := m2oName(data["stage_id"])
	if !ok {
		return domain.StageLead
	}
	lower := strings.ToLower(name)
	for _, kw := range stageKeywords {
		if strings.Contains(lower, kw.fragment) {
			return kw.stage
		}
	}
	return domain.StageLead
}

func mapPriority(priority string) string {
	switch priority {
	case "0":
		return "low"
	case "2":
		return "high"
	case "3":
		return "critical"
	default:
		return "medium"
	}
}

func mapActivityType(name string) domain.ActivityType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email"):
		return domain.ActivityTypeEmail
	case strings.Contains(lower, "call"):
		return domain.ActivityTypeCall
	case strings.Contains(lower, "meeting"):
		return domain.ActivityTypeMeeting
	default:
		return domain.ActivityTypeTask
	}
}

func mapActivityStatus(state string) domain.ActivityStatus {
	switch state {
	case "done":
		return domain.ActivityStatusCompleted
	case "cancel":
		return domain.ActivityStatusCancelled
	case "overdue":
		return domain.ActivityStatusOverdue
	default:
		return domain.ActivityStatusPending
	}
}

// m2oID pulls the id half of a relational [id, display-name] pair. The ERP
// sends false for empty relations.
func m2oID(v interface{}) (string, bool) {
	switch pair := v.(type) {
	case []interface{}:
		if len(pair) >= 1 {
			return fmt.Sprintf("%v", normalizeID(pair[0])), true
		}
	case float64:
		return fmt.Sprintf("%.0f", pair), true
	case int:
		return fmt.Sprintf("%d", pair), true
	}
	return "", false
}

// m2oName pulls the display-name half of a relational pair.
func m2oName(v interface{}) (string, bool) {
	if pair, ok := v.([]interface{}); ok && len(pair) >= 2 {
		if name, ok := pair[1].(string); ok {
			return name, true
		}
	}
	return "", false
}

// tagIDs flattens a many2many id list to strings.
func tagIDs(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(list))
	for _, item := range list {
		tags = append(tags, fmt.Sprintf("%v", normalizeID(item)))
	}
	return tags
}

// normalizeID renders JSON-decoded numeric ids without a float suffix.
func normalizeID(v interface{}) interface{} {
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return v
}

// strValue renders a field as a string, treating the ERP's false-for-empty
// convention as absent.
func strValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return ""
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// numValue renders a numeric field, tolerating false-for-empty.
func numValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// parseTime handles the ERP's "2006-01-02 15:04:05" and date-only formats,
// plus RFC3339 for newer endpoints.
func parseTime(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

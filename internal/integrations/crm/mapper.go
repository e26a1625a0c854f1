package crm

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

// Mapper maps CRM records to canonical entities for one entity type.
type Mapper struct {
	entityType domain.EntityType
	registry   components.MappingSource
}

// NewMapper creates a CRM mapper for one entity type.
func NewMapper(entityType domain.EntityType, registry components.MappingSource) *Mapper {
	return &Mapper{entityType: entityType, registry: registry}
}

// MapToRaw wraps the source record in an immutable raw envelope. The CRM
// keys records on Id.
func (m *Mapper) MapToRaw(source components.SourceRecord, batchID uuid.UUID) (domain.RawRecord, error) {
	id, _ := source["Id"].(string)
	if id == "" {
		return domain.RawRecord{}, errors.New(errors.ErrCodeMappingError, "crm record has no Id")
	}
	return domain.RawRecord{
		RawID:       uuid.New(),
		Source:      SourceName,
		EntityType:  m.entityType,
		SourceID:    id,
		RawData:     source,
		IngestedAt:  time.Now().UTC(),
		SyncBatchID: batchID,
	}, nil
}

// MapToCanonical builds the canonical entity: built-in defaults first, then
// registry mappings overlaid.
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

	ref := domain.SourceRef{Source: SourceName, SourceID: raw.SourceID, SourceModel: sobjectMap[m.entityType]}
	return components.BuildEntity(m.entityType, fields, ref)
}

func (m *Mapper) defaultFields(data map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{}
	if ts, ok := parseCRMTime(data["CreatedDate"]); ok {
		fields["created_at"] = ts
	}
	if ts, ok := parseCRMTime(data["LastModifiedDate"]); ok {
		fields["updated_at"] = ts
	}
	if owner := sv(data["OwnerId"]); owner != "" {
		fields["owner_id"] = owner
	}

	switch m.entityType {
	case domain.EntityContact:
		name := sv(data["Name"])
		if name == "" {
			name = strings.TrimSpace(sv(data["FirstName"]) + " " + sv(data["LastName"]))
		}
		fields["name"] = name
		fields["email"] = sv(data["Email"])
		fields["phone"] = sv(data["Phone"])
		fields["mobile"] = sv(data["MobilePhone"])
		fields["job_title"] = sv(data["Title"])
		fields["street"] = sv(data["MailingStreet"])
		fields["city"] = sv(data["MailingCity"])
		fields["state"] = sv(data["MailingState"])
		fields["country"] = sv(data["MailingCountry"])
		fields["postal_code"] = sv(data["MailingPostalCode"])
		fields["is_active"] = data["IsDeleted"] != true
		if acct := sv(data["AccountId"]); acct != "" {
			fields["account_id"] = acct
		}
	case domain.EntityAccount:
		fields["name"] = sv(data["Name"])
		fields["website"] = sv(data["Website"])
		fields["industry"] = sv(data["Industry"])
		if n, ok := data["NumberOfEmployees"].(float64); ok {
			fields["employee_count"] = int(n)
		}
		if n, ok := data["AnnualRevenue"].(float64); ok {
			fields["annual_revenue"] = n
		}
		fields["street"] = sv(data["BillingStreet"])
		fields["city"] = sv(data["BillingCity"])
		fields["state"] = sv(data["BillingState"])
		fields["country"] = sv(data["BillingCountry"])
		fields["postal_code"] = sv(data["BillingPostalCode"])
		fields["account_type"] = mapAccountType(sv(data["Type"]))
		fields["is_active"] = true
	case domain.EntityOpportunity:
		fields["name"] = sv(data["Name"])
		fields["stage"] = string(mapStageName(sv(data["StageName"])))
		if n, ok := data["Probability"].(float64); ok {
			fields["probability"] = n
		}
		if n, ok := data["Amount"].(float64); ok {
			fields["amount"] = n
		}
		if ts, ok := parseCRMTime(data["CloseDate"]); ok {
			if data["IsClosed"] == true {
				fields["actual_close_date"] = ts
			} else {
				fields["expected_close_date"] = ts
			}
		}
		fields["opportunity_type"] = sv(data["Type"])
		fields["lead_source"] = sv(data["LeadSource"])
		fields["next_step"] = sv(data["NextStep"])
		if acct := sv(data["AccountId"]); acct != "" {
			fields["account_id"] = acct
		}
	case domain.EntityActivity:
		fields["subject"] = sv(data["Subject"])
		fields["description"] = sv(data["Description"])
		fields["activity_type"] = string(domain.ActivityTypeTask)
		if ts, ok := parseCRMTime(data["ActivityDate"]); ok {
			fields["due_date"] = ts
		}
		fields["status"] = string(mapTaskStatus(sv(data["Status"])))
		fields["priority"] = strings.ToLower(sv(data["Priority"]))
		if who := sv(data["WhoId"]); who != "" {
			fields["contact_id"] = who
		}
		if what := sv(data["WhatId"]); what != "" {
			// WhatId points at an Account or an Opportunity; the id prefix
			// disambiguates (001 = Account, 006 = Opportunity).
			switch {
			case strings.HasPrefix(what, "001"):
				fields["account_id"] = what
			case strings.HasPrefix(what, "006"):
				fields["opportunity_id"] = what
			}
		}
		if owner := sv(data["OwnerId"]); owner != "" {
			fields["assigned_to"] = owner
		}
	case domain.EntityUser:
		fields["email"] = sv(data["Email"])
		fields["name"] = sv(data["Name"])
		fields["auth_provider"] = SourceName
		fields["external_id"] = sv(data["Id"])
		fields["job_title"] = sv(data["Title"])
		fields["is_active"] = data["IsActive"] != false
	}
	return fields
}

// crmStageMap maps well-known CRM stage names onto the canonical stage
// vocabulary; unmatched names fall through keyword matching.
var crmStageMap = map[string]domain.Stage{
	"prospecting":          domain.StageLead,
	"qualification":        domain.StageQualification,
	"needs analysis":       domain.StageDiscovery,
	"value proposition":    domain.StageDiscovery,
	"proposal/price quote": domain.StageProposal,
	"negotiation/review":   domain.StageNegotiation,
	"closed won":           domain.StageClosedWon,
	"closed lost":          domain.StageClosedLost,
}

func mapStageName(name string) domain.Stage {
	lower := strings.ToLower(strings.TrimSpace(name))
	if stage, ok := crmStageMap[lower]; ok {
		return stage
	}
	switch {
	case strings.Contains(lower, "won"):
		return domain.StageClosedWon
	case strings.Contains(lower, "lost"):
		return domain.StageClosedLost
	case strings.Contains(lower, "negoti"):
		return domain.StageNegotiation
	case strings.Contains(lower, "propos"):
		return domain.StageProposal
	case strings.Contains(lower, "qualif"):
		return domain.StageQualification
	case strings.Contains(lower, "discov"), strings.Contains(lower, "analysis"):
		return domain.StageDiscovery
	default:
		return domain.StageLead
	}
}

func mapAccountType(t string) string {
	switch strings.ToLower(t) {
	case "prospect":
		return string(domain.AccountTypeProspect)
	case "partner", "technology partner", "channel partner / reseller":
		return string(domain.AccountTypePartner)
	case "competitor":
		return string(domain.AccountTypeCompetitor)
	default:
		return string(domain.AccountTypeCustomer)
	}
}

func mapTaskStatus(status string) domain.ActivityStatus {
	switch strings.ToLower(status) {
	case "completed":
		return domain.ActivityStatusCompleted
	case "in progress":
		return domain.ActivityStatusInProgress
	case "deferred":
		return domain.ActivityStatusCancelled
	default:
		return domain.ActivityStatusPending
	}
}

// sv renders a field as a trimmed string, treating nil as empty.
func sv(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", s))
	}
}

// parseCRMTime handles the CRM's ISO-8601 datetimes (with offset) and
// date-only close dates.
func parseCRMTime(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

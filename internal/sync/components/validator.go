package components

import (
	"fmt"
	"strings"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/validator"
)

// EntityValidator is the shared Validator implementation. Structural checks
// (email shape) ride on pkg/validator; the business-rule checks per entity
// type are encoded directly.
type EntityValidator struct {
	v *validator.Validator
}

// NewEntityValidator creates the shared validator.
func NewEntityValidator() *EntityValidator {
	return &EntityValidator{v: validator.New()}
}

// ValidateRaw enforces presence of source-id and non-empty raw data.
func (ev *EntityValidator) ValidateRaw(rec domain.RawRecord) []string {
	var errs []string
	if rec.SourceID == "" {
		errs = append(errs, "missing source id")
	}
	if len(rec.RawData) == 0 {
		errs = append(errs, "empty raw data")
	}
	if rec.Source == "" {
		errs = append(errs, "missing source")
	}
	return errs
}

// ValidateCanonical enforces the per-type constraints: non-empty names,
// in-range probability, non-negative amounts/revenues/employee counts, and
// basic email well-formedness.
func (ev *EntityValidator) ValidateCanonical(entity domain.Entity) []string {
	var errs []string
	if len(entity.GetEnvelope().Sources) == 0 {
		errs = append(errs, "entity carries no source reference")
	}

	switch e := entity.(type) {
	case *domain.Contact:
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, "contact name is required")
		}
		errs = ev.appendEmailError(errs, e.Email)
	case *domain.Account:
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, "account name is required")
		}
		if e.EmployeeCount != nil && *e.EmployeeCount < 0 {
			errs = append(errs, "employee count must be non-negative")
		}
		if e.AnnualRevenue != nil && *e.AnnualRevenue < 0 {
			errs = append(errs, "annual revenue must be non-negative")
		}
	case *domain.Opportunity:
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, "opportunity name is required")
		}
		if e.Probability < 0 || e.Probability > 100 {
			errs = append(errs, fmt.Sprintf("probability %.1f out of range [0,100]", e.Probability))
		}
		if e.Amount < 0 {
			errs = append(errs, "amount must be non-negative")
		}
	case *domain.Activity:
		if strings.TrimSpace(e.Subject) == "" {
			errs = append(errs, "activity subject is required")
		}
	case *domain.User:
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, "user name is required")
		}
		if e.Email == "" {
			errs = append(errs, "user email is required")
		} else {
			errs = ev.appendEmailError(errs, e.Email)
		}
	default:
		errs = append(errs, "unknown entity type")
	}
	return errs
}

func (ev *EntityValidator) appendEmailError(errs []string, email string) []string {
	if email == "" {
		return errs
	}
	if err := ev.v.ValidateVar(email, "email"); err != nil {
		errs = append(errs, fmt.Sprintf("malformed email %q", email))
	}
	return errs
}

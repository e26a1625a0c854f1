package domain

import (
	"time"

	"github.com/google/uuid"
)

// Address is a reusable value object embedded by Contact and Account.
type Address struct {
	Street     string `json:"street,omitempty" bson:"street,omitempty"`
	City       string `json:"city,omitempty" bson:"city,omitempty"`
	State      string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" bson:"country,omitempty"`
}

// Contact is a canonical contact entity.
type Contact struct {
	Envelope `bson:",inline"`

	Name        string   `json:"name" bson:"name"`
	Email       string   `json:"email,omitempty" bson:"email,omitempty"`
	Phone       string   `json:"phone,omitempty" bson:"phone,omitempty"`
	Mobile      string   `json:"mobile,omitempty" bson:"mobile,omitempty"`
	AccountID   *uuid.UUID `json:"account_id,omitempty" bson:"account_id,omitempty"`
	CompanyName string   `json:"company_name,omitempty" bson:"company_name,omitempty"`
	JobTitle    string   `json:"job_title,omitempty" bson:"job_title,omitempty"`
	Address     Address  `json:"address,omitempty" bson:"address,omitempty"`
	Tags        []string `json:"tags,omitempty" bson:"tags,omitempty"`
	IsActive    bool     `json:"is_active" bson:"is_active"`
	Notes       string   `json:"notes,omitempty" bson:"notes,omitempty"`
}

func (c *Contact) GetEnvelope() *Envelope { return &c.Envelope }

// AccountType enumerates the canonical account classification.
type AccountType string

const (
	AccountTypeProspect   AccountType = "prospect"
	AccountTypeCustomer   AccountType = "customer"
	AccountTypePartner    AccountType = "partner"
	AccountTypeCompetitor AccountType = "competitor"
)

// Account is a canonical account (company) entity.
type Account struct {
	Envelope `bson:",inline"`

	Name           string                 `json:"name" bson:"name"`
	Website        string                 `json:"website,omitempty" bson:"website,omitempty"`
	Industry       string                 `json:"industry,omitempty" bson:"industry,omitempty"`
	EmployeeCount  *int                   `json:"employee_count,omitempty" bson:"employee_count,omitempty"`
	AnnualRevenue  *float64               `json:"annual_revenue,omitempty" bson:"annual_revenue,omitempty"`
	Address        Address                `json:"address,omitempty" bson:"address,omitempty"`
	AccountType    AccountType            `json:"account_type" bson:"account_type"`
	Tier           string                 `json:"tier,omitempty" bson:"tier,omitempty"`
	Tags           []string               `json:"tags,omitempty" bson:"tags,omitempty"`
	IsActive       bool                   `json:"is_active" bson:"is_active"`
	HealthScore    *float64               `json:"health_score,omitempty" bson:"health_score,omitempty"`
	CustomFields   map[string]interface{} `json:"custom_fields,omitempty" bson:"custom_fields,omitempty"`
}

func (a *Account) GetEnvelope() *Envelope { return &a.Envelope }

// Stage is one of the canonical opportunity pipeline stages.
type Stage string

const (
	StageLead          Stage = "lead"
	StageQualification Stage = "qualification"
	StageDiscovery     Stage = "discovery"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed-won"
	StageClosedLost    Stage = "closed-lost"
)

// IsClosed reports whether the stage is a terminal stage.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// CanTransitionTo reports whether a stage change is legal: from a closed
// stage there are no outgoing transitions; every other transition is
// allowed. Enforced only on UI-originated (local-source) writes, never on
// inbound sync data, which is authoritative.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s.IsClosed() {
		return false
	}
	return true
}

// StageChange is one append-only entry in an opportunity's stage history.
type StageChange struct {
	From      Stage     `json:"from" bson:"from"`
	To        Stage     `json:"to" bson:"to"`
	ChangedAt time.Time `json:"changed_at" bson:"changed_at"`
	ChangedBy *uuid.UUID `json:"changed_by,omitempty" bson:"changed_by,omitempty"`
}

// Opportunity is a canonical sales opportunity entity.
type Opportunity struct {
	Envelope `bson:",inline"`

	Name             string        `json:"name" bson:"name"`
	AccountID        *uuid.UUID    `json:"account_id,omitempty" bson:"account_id,omitempty"`
	ContactID        *uuid.UUID    `json:"contact_id,omitempty" bson:"contact_id,omitempty"`
	Stage            Stage         `json:"stage" bson:"stage"`
	Probability      float64       `json:"probability" bson:"probability"`
	Amount           float64       `json:"amount" bson:"amount"`
	Currency         string        `json:"currency" bson:"currency"`
	ExpectedCloseDate *time.Time   `json:"expected_close_date,omitempty" bson:"expected_close_date,omitempty"`
	ActualCloseDate  *time.Time    `json:"actual_close_date,omitempty" bson:"actual_close_date,omitempty"`
	OpportunityType  string        `json:"opportunity_type,omitempty" bson:"opportunity_type,omitempty"`
	LeadSource       string        `json:"lead_source,omitempty" bson:"lead_source,omitempty"`
	Priority         string        `json:"priority,omitempty" bson:"priority,omitempty"`
	NextStep         string        `json:"next_step,omitempty" bson:"next_step,omitempty"`
	Competitor       string        `json:"competitor,omitempty" bson:"competitor,omitempty"`
	LossReason       string        `json:"loss_reason,omitempty" bson:"loss_reason,omitempty"`
	IsClosed         bool          `json:"is_closed" bson:"is_closed"`
	IsWon            bool          `json:"is_won" bson:"is_won"`
	StageHistory     []StageChange `json:"stage_history" bson:"stage_history"`
}

func (o *Opportunity) GetEnvelope() *Envelope { return &o.Envelope }

// AddStageChange appends exactly one entry to StageHistory, using the
// pre-transition stage as From, and updates the derived closed/won flags.
func (o *Opportunity) AddStageChange(next Stage, changedBy *uuid.UUID) {
	o.StageHistory = append(o.StageHistory, StageChange{
		From:      o.Stage,
		To:        next,
		ChangedAt: time.Now().UTC(),
		ChangedBy: changedBy,
	})
	o.Stage = next
	o.IsClosed = next.IsClosed()
	o.IsWon = next == StageClosedWon
	if o.IsClosed {
		now := time.Now().UTC()
		o.ActualCloseDate = &now
	}
}

// ActivityType enumerates the kinds of sales activity.
type ActivityType string

const (
	ActivityTypeCall    ActivityType = "call"
	ActivityTypeEmail   ActivityType = "email"
	ActivityTypeMeeting ActivityType = "meeting"
	ActivityTypeTask    ActivityType = "task"
	ActivityTypeNote    ActivityType = "note"
)

// ActivityStatus enumerates an activity's lifecycle status.
type ActivityStatus string

const (
	ActivityStatusPending    ActivityStatus = "pending"
	ActivityStatusInProgress ActivityStatus = "in-progress"
	ActivityStatusCompleted  ActivityStatus = "completed"
	ActivityStatusCancelled  ActivityStatus = "cancelled"
	ActivityStatusOverdue    ActivityStatus = "overdue"
)

// Activity is a canonical sales activity entity.
type Activity struct {
	Envelope `bson:",inline"`

	Subject       string         `json:"subject" bson:"subject"`
	ActivityType  ActivityType   `json:"activity_type" bson:"activity_type"`
	Description   string         `json:"description,omitempty" bson:"description,omitempty"`
	AccountID     *uuid.UUID     `json:"account_id,omitempty" bson:"account_id,omitempty"`
	ContactID     *uuid.UUID     `json:"contact_id,omitempty" bson:"contact_id,omitempty"`
	OpportunityID *uuid.UUID     `json:"opportunity_id,omitempty" bson:"opportunity_id,omitempty"`
	DueDate       *time.Time     `json:"due_date,omitempty" bson:"due_date,omitempty"`
	StartTime     *time.Time     `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty" bson:"end_time,omitempty"`
	DurationMin   int            `json:"duration_minutes,omitempty" bson:"duration_minutes,omitempty"`
	Status        ActivityStatus `json:"status" bson:"status"`
	Priority      string         `json:"priority,omitempty" bson:"priority,omitempty"`
	Outcome       string         `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Notes         string         `json:"notes,omitempty" bson:"notes,omitempty"`
}

func (a *Activity) GetEnvelope() *Envelope { return &a.Envelope }

// IsOverdue reports whether the activity is overdue as of now: not
// completed and due in the past.
func (a *Activity) IsOverdue(now time.Time) bool {
	return a.Status != ActivityStatusCompleted && a.DueDate != nil && a.DueDate.Before(now)
}

// IsUpcoming reports whether the activity is not completed and due within
// [now, now+7d). Overdue and upcoming are disjoint.
func (a *Activity) IsUpcoming(now time.Time) bool {
	if a.Status == ActivityStatusCompleted || a.DueDate == nil {
		return false
	}
	window := now.AddDate(0, 0, 7)
	return !a.DueDate.Before(now) && a.DueDate.Before(window)
}

// VisibilityScope controls how much of the canonical data a user can see.
type VisibilityScope string

const (
	ScopeOwn        VisibilityScope = "own"
	ScopeTeam       VisibilityScope = "team"
	ScopeDepartment VisibilityScope = "department"
	ScopeAll        VisibilityScope = "all"
)

// User is a canonical application user entity.
type User struct {
	Envelope `bson:",inline"`

	Email           string                 `json:"email" bson:"email"`
	Name            string                 `json:"name" bson:"name"`
	AuthProvider    string                 `json:"auth_provider" bson:"auth_provider"`
	ExternalID      string                 `json:"external_id,omitempty" bson:"external_id,omitempty"`
	Role            string                 `json:"role" bson:"role"`
	VisibilityScope VisibilityScope        `json:"visibility_scope" bson:"visibility_scope"`
	ManagerID       *uuid.UUID             `json:"manager_id,omitempty" bson:"manager_id,omitempty"`
	JobTitle        string                 `json:"job_title,omitempty" bson:"job_title,omitempty"`
	IsActive        bool                   `json:"is_active" bson:"is_active"`
	LastLogin       *time.Time             `json:"last_login,omitempty" bson:"last_login,omitempty"`
	Preferences     map[string]interface{} `json:"preferences,omitempty" bson:"preferences,omitempty"`
}

func (u *User) GetEnvelope() *Envelope { return &u.Envelope }

// NewForType constructs a zero-value entity pointer for the given type,
// stamped with a fresh envelope for the given source ref. Used by mappers
// and the registry-driven factory (BuildEntity in internal/sync/components).
func NewForType(t EntityType, ref SourceRef) Entity {
	env := NewEnvelope(t, ref)
	switch t {
	case EntityContact:
		return &Contact{Envelope: env, IsActive: true}
	case EntityAccount:
		return &Account{Envelope: env, IsActive: true, AccountType: AccountTypeProspect}
	case EntityOpportunity:
		return &Opportunity{Envelope: env, Stage: StageLead, Currency: "USD"}
	case EntityActivity:
		return &Activity{Envelope: env, Status: ActivityStatusPending}
	case EntityUser:
		return &User{Envelope: env, IsActive: true, VisibilityScope: ScopeOwn}
	}
	return nil
}

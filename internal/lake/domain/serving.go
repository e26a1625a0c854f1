package domain

import (
	"time"

	"github.com/google/uuid"
)

// Period is a dashboard aggregation window.
type Period string

const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// DashboardStats is a materialized, per-(user, period) aggregation over the
// canonical zone.
type DashboardStats struct {
	UserID uuid.UUID `json:"user_id" bson:"user_id"`
	Period Period    `json:"period" bson:"period"`

	AccountsTotal  int `json:"accounts_total" bson:"accounts_total"`
	AccountsNew    int `json:"accounts_new" bson:"accounts_new"`
	AccountsActive int `json:"accounts_active" bson:"accounts_active"`

	OpportunitiesTotal int     `json:"opportunities_total" bson:"opportunities_total"`
	OpportunitiesOpen  int     `json:"opportunities_open" bson:"opportunities_open"`
	OpportunitiesWon   int     `json:"opportunities_won" bson:"opportunities_won"`
	OpportunitiesLost  int     `json:"opportunities_lost" bson:"opportunities_lost"`
	PipelineValue      float64 `json:"pipeline_value" bson:"pipeline_value"`
	WonValue           float64 `json:"won_value" bson:"won_value"`

	ActivitiesTotal     int `json:"activities_total" bson:"activities_total"`
	ActivitiesCompleted int `json:"activities_completed" bson:"activities_completed"`
	ActivitiesOverdue   int `json:"activities_overdue" bson:"activities_overdue"`
	ActivitiesUpcoming  int `json:"activities_upcoming" bson:"activities_upcoming"`

	WinRate        float64 `json:"win_rate" bson:"win_rate"`
	AvgDealSize    float64 `json:"avg_deal_size" bson:"avg_deal_size"`
	ConversionRate float64 `json:"conversion_rate" bson:"conversion_rate"`

	ComputedAt time.Time `json:"computed_at" bson:"computed_at"`
}

// StageSummary is the per-stage rollup inside a PipelineSummary.
type StageSummary struct {
	Stage         Stage   `json:"stage" bson:"stage"`
	Count         int     `json:"count" bson:"count"`
	Value         float64 `json:"value" bson:"value"`
	WeightedValue float64 `json:"weighted_value" bson:"weighted_value"`
}

// PipelineSummary is a materialized per-(user, scope) opportunity rollup.
type PipelineSummary struct {
	UserID uuid.UUID       `json:"user_id" bson:"user_id"`
	Scope  VisibilityScope `json:"scope" bson:"scope"`

	Stages          []StageSummary `json:"stages" bson:"stages"`
	TotalCount      int            `json:"total_count" bson:"total_count"`
	TotalValue      float64        `json:"total_value" bson:"total_value"`
	WeightedTotal   float64        `json:"weighted_total" bson:"weighted_total"`
	AverageAgeDays  float64        `json:"average_age_days" bson:"average_age_days"`
	StalledCount    int            `json:"stalled_count" bson:"stalled_count"`

	ComputedAt time.Time `json:"computed_at" bson:"computed_at"`
}

// KPISnapshot is one append-only per-user KPI-vs-goal observation.
type KPISnapshot struct {
	ID              uuid.UUID          `json:"id" bson:"_id"`
	UserID          uuid.UUID          `json:"user_id" bson:"user_id"`
	Date            time.Time          `json:"date" bson:"date"`
	KPIs            map[string]float64 `json:"kpis" bson:"kpis"`
	Goals           map[string]float64 `json:"goals,omitempty" bson:"goals,omitempty"`
	AchievementPct  map[string]float64 `json:"achievement_pct" bson:"achievement_pct"`
}

// ActivityFeedEntry is one append-only, user-visible event.
type ActivityFeedEntry struct {
	ID           uuid.UUID `json:"id" bson:"_id"`
	UserID       uuid.UUID `json:"user_id" bson:"user_id"`
	ActivityType string    `json:"activity_type" bson:"activity_type"`
	Title        string    `json:"title" bson:"title"`
	Description  string    `json:"description,omitempty" bson:"description,omitempty"`
	EntityType   EntityType `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	EntityID     *uuid.UUID `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// BatchStatus is the lexicon of a SyncBatch's lifecycle status, persisted literally.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchCounts tallies per-batch record outcomes.
type BatchCounts struct {
	Processed int `json:"processed" bson:"processed"`
	Created   int `json:"created" bson:"created"`
	Updated   int `json:"updated" bson:"updated"`
	Failed    int `json:"failed" bson:"failed"`
}

// BatchError is one bounded failure entry attached to a SyncBatch.
type BatchError struct {
	SourceID string `json:"source_id" bson:"source_id"`
	Stage    string `json:"stage" bson:"stage"`
	Message  string `json:"message" bson:"message"`
}

// SyncBatch is one invocation of the pipeline for one (source, entity-type).
type SyncBatch struct {
	ID          uuid.UUID              `json:"id" bson:"_id"`
	Source      string                 `json:"source" bson:"source"`
	EntityType  EntityType             `json:"entity_type" bson:"entity_type"`
	StartedAt   time.Time              `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Status      BatchStatus            `json:"status" bson:"status"`
	Counts      BatchCounts            `json:"counts" bson:"counts"`
	Errors      []BatchError           `json:"errors,omitempty" bson:"errors,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// MaxBatchErrors bounds the per-batch error list; only the first failures
// are kept.
const MaxBatchErrors = 50

// AppendError appends a bounded batch error entry.
func (b *SyncBatch) AppendError(sourceID, stage, message string) {
	if len(b.Errors) >= MaxBatchErrors {
		return
	}
	b.Errors = append(b.Errors, BatchError{SourceID: sourceID, Stage: stage, Message: message})
}

// Zone identifies which data-lake zone an AuditEntry describes.
type Zone string

const (
	ZoneRaw       Zone = "raw"
	ZoneCanonical Zone = "canonical"
	ZoneServing   Zone = "serving"
)

// AuditAction enumerates audit trail actions.
type AuditAction string

const (
	AuditSyncCreate AuditAction = "sync-create"
	AuditSyncUpdate AuditAction = "sync-update"
	AuditMerge      AuditAction = "merge"
	AuditDelete     AuditAction = "delete"
)

// AuditEntry is one append-only audit-trail record.
type AuditEntry struct {
	ID         uuid.UUID              `json:"id" bson:"_id"`
	EntityType EntityType             `json:"entity_type" bson:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id" bson:"entity_id"`
	Action     AuditAction            `json:"action" bson:"action"`
	Zone       Zone                   `json:"zone" bson:"zone"`
	Source     string                 `json:"source,omitempty" bson:"source,omitempty"`
	UserID     *uuid.UUID             `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Changes    map[string]interface{} `json:"changes,omitempty" bson:"changes,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
}

// SyncMode distinguishes a full resync from an incremental one.
type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

// JobStatus is the lexicon of a SyncJob's lifecycle status.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// SyncJob is a scheduled or enqueued intent to run a batch.
type SyncJob struct {
	ID          uuid.UUID              `json:"id" bson:"_id"`
	Source      string                 `json:"source" bson:"source"`
	EntityType  EntityType             `json:"entity_type" bson:"entity_type"`
	Mode        SyncMode               `json:"mode" bson:"mode"`
	Priority    int                    `json:"priority" bson:"priority"`
	Status      JobStatus              `json:"status" bson:"status"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty" bson:"result,omitempty"`
	Error       string                 `json:"error,omitempty" bson:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// SyncSchedule is an enabled, recurring sync configuration.
type SyncSchedule struct {
	ID              uuid.UUID  `json:"id" bson:"_id"`
	Source          string     `json:"source" bson:"source"`
	EntityType      EntityType `json:"entity_type" bson:"entity_type"`
	Mode            SyncMode   `json:"mode" bson:"mode"`
	IntervalMinutes int        `json:"interval_minutes" bson:"interval_minutes"`
	NextRun         time.Time  `json:"next_run" bson:"next_run"`
	LastRun         *time.Time `json:"last_run,omitempty" bson:"last_run,omitempty"`
	Enabled         bool       `json:"enabled" bson:"enabled"`
}

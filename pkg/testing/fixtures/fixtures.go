// Package fixtures provides test data fixtures for integration testing.
// Shapes mirror the persisted documents rather than importing the domain
// packages, so the fixtures stay usable from any layer's tests.
package fixtures

import (
	"time"

	"github.com/google/uuid"
)

// TestIDs contains commonly used test UUIDs.
var TestIDs = struct {
	UserID1        uuid.UUID
	UserID2        uuid.UUID
	UserID3        uuid.UUID
	TeamID1        uuid.UUID
	TeamID2        uuid.UUID
	DepartmentID1  uuid.UUID
	AccountID1     uuid.UUID
	AccountID2     uuid.UUID
	ContactID1     uuid.UUID
	ContactID2     uuid.UUID
	OpportunityID1 uuid.UUID
	OpportunityID2 uuid.UUID
	ActivityID1    uuid.UUID
	BatchID1       uuid.UUID
	BatchID2       uuid.UUID
	JobID1         uuid.UUID
	ScheduleID1    uuid.UUID
}{
	UserID1:        uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"),
	UserID2:        uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"),
	UserID3:        uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc"),
	TeamID1:        uuid.MustParse("11111111-1111-1111-1111-111111111111"),
	TeamID2:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
	DepartmentID1:  uuid.MustParse("33333333-3333-3333-3333-333333333333"),
	AccountID1:     uuid.MustParse("f1111111-1111-1111-1111-111111111111"),
	AccountID2:     uuid.MustParse("f2222222-2222-2222-2222-222222222222"),
	ContactID1:     uuid.MustParse("c1111111-1111-1111-1111-111111111111"),
	ContactID2:     uuid.MustParse("c2222222-2222-2222-2222-222222222222"),
	OpportunityID1: uuid.MustParse("0777aaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"),
	OpportunityID2: uuid.MustParse("0777bbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"),
	ActivityID1:    uuid.MustParse("ac711111-1111-1111-1111-111111111111"),
	BatchID1:       uuid.MustParse("ba7c1111-1111-1111-1111-111111111111"),
	BatchID2:       uuid.MustParse("ba7c2222-2222-2222-2222-222222222222"),
	JobID1:         uuid.MustParse("10b11111-1111-1111-1111-111111111111"),
	ScheduleID1:    uuid.MustParse("5c4e1111-1111-1111-1111-111111111111"),
}

// SourceRefFixture mirrors the embedded SourceRef document.
type SourceRefFixture struct {
	Source      string `bson:"source"`
	SourceID    string `bson:"source_id"`
	SourceModel string `bson:"source_model,omitempty"`
}

// CanonicalAccountFixture mirrors a canonical_accounts document.
type CanonicalAccountFixture struct {
	ID          uuid.UUID          `bson:"_id"`
	EntityType  string             `bson:"entity_type"`
	Name        string             `bson:"name"`
	Website     string             `bson:"website,omitempty"`
	Industry    string             `bson:"industry,omitempty"`
	AccountType string             `bson:"account_type"`
	IsActive    bool               `bson:"is_active"`
	Sources     []SourceRefFixture `bson:"sources"`
	OwnerID     *uuid.UUID         `bson:"owner_id,omitempty"`
	TeamID      *uuid.UUID         `bson:"team_id,omitempty"`
	Version     int                `bson:"version"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// DefaultAccountFixtures returns canonical account fixtures: one synced
// from the ERP, one observed by both sources.
func DefaultAccountFixtures() []CanonicalAccountFixture {
	now := time.Now().UTC()
	return []CanonicalAccountFixture{
		{
			ID: TestIDs.AccountID1, EntityType: "account",
			Name: "Acme Corp", Website: "https://acme.example.com",
			Industry: "Manufacturing", AccountType: "customer", IsActive: true,
			Sources: []SourceRefFixture{
				{Source: "odoo", SourceID: "7", SourceModel: "res.partner"},
			},
			OwnerID: &TestIDs.UserID1, TeamID: &TestIDs.TeamID1,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: TestIDs.AccountID2, EntityType: "account",
			Name: "Globex Trading", AccountType: "prospect", IsActive: true,
			Sources: []SourceRefFixture{
				{Source: "salesforce", SourceID: "001xx000003DGb1", SourceModel: "Account"},
				{Source: "odoo", SourceID: "19", SourceModel: "res.partner"},
			},
			OwnerID: &TestIDs.UserID2, TeamID: &TestIDs.TeamID1,
			Version: 2, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now,
		},
	}
}

// CanonicalOpportunityFixture mirrors a canonical_opportunitys document.
type CanonicalOpportunityFixture struct {
	ID          uuid.UUID          `bson:"_id"`
	EntityType  string             `bson:"entity_type"`
	Name        string             `bson:"name"`
	AccountID   *uuid.UUID         `bson:"account_id,omitempty"`
	Stage       string             `bson:"stage"`
	Probability float64            `bson:"probability"`
	Amount      float64            `bson:"amount"`
	Currency    string             `bson:"currency"`
	IsClosed    bool               `bson:"is_closed"`
	IsWon       bool               `bson:"is_won"`
	Sources     []SourceRefFixture `bson:"sources"`
	OwnerID     *uuid.UUID         `bson:"owner_id,omitempty"`
	Version     int                `bson:"version"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// DefaultOpportunityFixtures returns one open and one won opportunity for
// the same owner, sized so the weighted-pipeline math is easy to eyeball.
func DefaultOpportunityFixtures() []CanonicalOpportunityFixture {
	now := time.Now().UTC()
	return []CanonicalOpportunityFixture{
		{
			ID: TestIDs.OpportunityID1, EntityType: "opportunity",
			Name: "Batik wholesale expansion", AccountID: &TestIDs.AccountID1,
			Stage: "negotiation", Probability: 60, Amount: 25000, Currency: "MYR",
			Sources: []SourceRefFixture{
				{Source: "odoo", SourceID: "31", SourceModel: "crm.lead"},
			},
			OwnerID: &TestIDs.UserID1,
			Version: 3, CreatedAt: now.Add(-30 * 24 * time.Hour), UpdatedAt: now,
		},
		{
			ID: TestIDs.OpportunityID2, EntityType: "opportunity",
			Name: "Globex starter order", AccountID: &TestIDs.AccountID2,
			Stage: "closed-won", Probability: 100, Amount: 5000, Currency: "MYR",
			IsClosed: true, IsWon: true,
			Sources: []SourceRefFixture{
				{Source: "salesforce", SourceID: "006xx000001a2bC", SourceModel: "Opportunity"},
			},
			OwnerID: &TestIDs.UserID1,
			Version: 5, CreatedAt: now.Add(-60 * 24 * time.Hour), UpdatedAt: now.Add(-24 * time.Hour),
		},
	}
}

// RawRecordFixture mirrors a raw_<source>_<entitytype>s document.
type RawRecordFixture struct {
	RawID       uuid.UUID              `bson:"_id"`
	Source      string                 `bson:"source"`
	EntityType  string                 `bson:"entity_type"`
	SourceID    string                 `bson:"source_id"`
	RawData     map[string]interface{} `bson:"raw_data"`
	IngestedAt  time.Time              `bson:"ingested_at"`
	SyncBatchID uuid.UUID              `bson:"sync_batch_id"`
}

// DefaultRawRecordFixtures returns raw ERP partner records for one batch,
// in ingestion order.
func DefaultRawRecordFixtures() []RawRecordFixture {
	now := time.Now().UTC()
	return []RawRecordFixture{
		{
			RawID: uuid.New(), Source: "odoo", EntityType: "account", SourceID: "7",
			RawData: map[string]interface{}{
				"id": 7, "name": "Acme Corp", "is_company": true,
				"write_date": "2024-06-01 08:00:00",
			},
			IngestedAt: now.Add(-2 * time.Minute), SyncBatchID: TestIDs.BatchID1,
		},
		{
			RawID: uuid.New(), Source: "odoo", EntityType: "account", SourceID: "19",
			RawData: map[string]interface{}{
				"id": 19, "name": "Globex Trading", "is_company": true,
				"write_date": "2024-06-01 09:30:00",
			},
			IngestedAt: now.Add(-1 * time.Minute), SyncBatchID: TestIDs.BatchID1,
		},
	}
}

// SyncJobFixture mirrors a sync_jobs document.
type SyncJobFixture struct {
	ID         uuid.UUID  `bson:"_id"`
	Source     string     `bson:"source"`
	EntityType string     `bson:"entity_type"`
	Mode       string     `bson:"mode"`
	Priority   int        `bson:"priority"`
	Status     string     `bson:"status"`
	CreatedAt  time.Time  `bson:"created_at"`
	StartedAt  *time.Time `bson:"started_at,omitempty"`
}

// DefaultSyncJobFixtures returns a pending job queue with mixed priorities:
// the scheduler-priority job should dequeue first despite being newer.
func DefaultSyncJobFixtures() []SyncJobFixture {
	now := time.Now().UTC()
	return []SyncJobFixture{
		{
			ID: TestIDs.JobID1, Source: "odoo", EntityType: "account",
			Mode: "incremental", Priority: 5, Status: "pending",
			CreatedAt: now.Add(-10 * time.Minute),
		},
		{
			ID: uuid.New(), Source: "salesforce", EntityType: "contact",
			Mode: "full", Priority: 3, Status: "pending",
			CreatedAt: now.Add(-5 * time.Minute),
		},
	}
}

// SyncScheduleFixture mirrors a sync_schedules document.
type SyncScheduleFixture struct {
	ID              uuid.UUID `bson:"_id"`
	Source          string    `bson:"source"`
	EntityType      string    `bson:"entity_type"`
	Mode            string    `bson:"mode"`
	IntervalMinutes int       `bson:"interval_minutes"`
	NextRun         time.Time `bson:"next_run"`
	Enabled         bool      `bson:"enabled"`
}

// DefaultSyncScheduleFixtures returns one due, enabled schedule.
func DefaultSyncScheduleFixtures() []SyncScheduleFixture {
	return []SyncScheduleFixture{
		{
			ID: TestIDs.ScheduleID1, Source: "odoo", EntityType: "opportunity",
			Mode: "incremental", IntervalMinutes: 30,
			NextRun: time.Now().UTC().Add(-time.Minute), Enabled: true,
		},
	}
}

// EventFixture represents a test event for event bus testing.
type EventFixture struct {
	ID          string
	Type        string
	Source      string
	AggregateID string
	Version     int
	Timestamp   time.Time
	Data        map[string]interface{}
}

// DefaultEventFixtures returns default event fixtures covering the batch
// and entity lifecycle topics.
func DefaultEventFixtures() []EventFixture {
	now := time.Now().UTC()
	return []EventFixture{
		{
			ID:          uuid.New().String(),
			Type:        "sync.batch.completed",
			Source:      "odoo",
			AggregateID: TestIDs.BatchID1.String(),
			Version:     1,
			Timestamp:   now,
			Data: map[string]interface{}{
				"entity_type": "account",
				"processed":   2, "created": 2, "updated": 0, "failed": 0,
			},
		},
		{
			ID:          uuid.New().String(),
			Type:        "lake.canonical.entity_created",
			Source:      "odoo",
			AggregateID: TestIDs.AccountID1.String(),
			Version:     1,
			Timestamp:   now,
			Data: map[string]interface{}{
				"entity_type": "account",
				"name":        "Acme Corp",
			},
		},
		{
			ID:          uuid.New().String(),
			Type:        "lake.canonical.entity_merged",
			Source:      "local",
			AggregateID: TestIDs.AccountID2.String(),
			Version:     2,
			Timestamp:   now,
			Data: map[string]interface{}{
				"entity_type":  "account",
				"secondary_id": uuid.New().String(),
			},
		},
	}
}

// NewUUID generates a new UUID for testing.
func NewUUID() uuid.UUID {
	return uuid.New()
}

// TimeNow returns the current UTC time.
func TimeNow() time.Time {
	return time.Now().UTC()
}

// TimePast returns a time in the past.
func TimePast(d time.Duration) time.Time {
	return time.Now().UTC().Add(-d)
}

// TimeFuture returns a time in the future.
func TimeFuture(d time.Duration) time.Time {
	return time.Now().UTC().Add(d)
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// --- fakes ---

type fakeStream struct {
	records []components.SourceRecord
}

func (s *fakeStream) Next(ctx context.Context) (components.SourceRecord, error) {
	if len(s.records) == 0 {
		return nil, components.ErrEndOfStream
	}
	rec := s.records[0]
	s.records = s.records[1:]
	if rec["fetch_error"] == true {
		return nil, errors.New(errors.ErrCodeFetchError, "fetch blew up")
	}
	return rec, nil
}

type fakeConnector struct {
	records      []components.SourceRecord
	single       components.SourceRecord
	failConnects int
	connects     int
	lastSince    *time.Time
}

func (c *fakeConnector) Connect(ctx context.Context) error {
	c.connects++
	if c.connects <= c.failConnects {
		return errors.New(errors.ErrCodeConnectionError, "source down")
	}
	return nil
}
func (c *fakeConnector) Disconnect(ctx context.Context) error { return nil }
func (c *fakeConnector) TestConnection(ctx context.Context) components.ConnectionStatus {
	return components.ConnectionStatus{Connected: true, Source: c.SourceName()}
}
func (c *fakeConnector) FetchRecords(ctx context.Context, entityType domain.EntityType, since *time.Time, batchSize int) (components.RecordStream, error) {
	c.lastSince = since
	return &fakeStream{records: append([]components.SourceRecord{}, c.records...)}, nil
}
func (c *fakeConnector) FetchRecord(ctx context.Context, entityType domain.EntityType, sourceID string) (components.SourceRecord, error) {
	return c.single, nil
}
func (c *fakeConnector) GetRecordCount(ctx context.Context, entityType domain.EntityType, since *time.Time) (int64, error) {
	return int64(len(c.records)), nil
}
func (c *fakeConnector) SourceName() string { return "faketest" }

type fakeMapper struct{}

func (m *fakeMapper) MapToRaw(source components.SourceRecord, batchID uuid.UUID) (domain.RawRecord, error) {
	if source["fail_raw_map"] == true {
		return domain.RawRecord{}, errors.New(errors.ErrCodeMappingError, "bad shape")
	}
	return domain.RawRecord{
		RawID: uuid.New(), Source: "faketest", EntityType: domain.EntityContact,
		SourceID: source["id"].(string), RawData: source,
		IngestedAt: time.Now().UTC(), SyncBatchID: batchID,
	}, nil
}

func (m *fakeMapper) MapToCanonical(ctx context.Context, raw domain.RawRecord) (domain.Entity, error) {
	if raw.RawData["fail_canon_map"] == true {
		return nil, errors.New(errors.ErrCodeMappingError, "unmappable")
	}
	entity := domain.NewForType(domain.EntityContact, domain.SourceRef{Source: "faketest", SourceID: raw.SourceID}).(*domain.Contact)
	entity.Name, _ = raw.RawData["name"].(string)
	return entity, nil
}

type fakeValidator struct{}

func (v *fakeValidator) ValidateRaw(rec domain.RawRecord) []string {
	if rec.RawData["invalid_raw"] == true {
		return []string{"raw invalid"}
	}
	return nil
}
func (v *fakeValidator) ValidateCanonical(entity domain.Entity) []string {
	if entity.(*domain.Contact).Name == "" {
		return []string{"name required"}
	}
	return nil
}

type fakeNormalizer struct {
	existing map[string]bool
	resets   int
}

func (n *fakeNormalizer) Normalize(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	return entity, nil
}
func (n *fakeNormalizer) Deduplicate(ctx context.Context, entity domain.Entity) (bool, error) {
	return n.existing[entity.GetEnvelope().Sources[0].SourceID], nil
}
func (n *fakeNormalizer) ResolveReferences(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	return entity, nil
}
func (n *fakeNormalizer) ResetCache() { n.resets++ }

type fakeLoader struct {
	rawLoads       int
	canonicalLoads int
	servingLoads   int
}

func (l *fakeLoader) LoadRaw(ctx context.Context, rec domain.RawRecord) (uuid.UUID, error) {
	l.rawLoads++
	return rec.RawID, nil
}
func (l *fakeLoader) LoadCanonical(ctx context.Context, entity domain.Entity) (uuid.UUID, bool, error) {
	l.canonicalLoads++
	return entity.GetEnvelope().ID, true, nil
}
func (l *fakeLoader) LoadServing(ctx context.Context, entity domain.Entity) error {
	l.servingLoads++
	return nil
}

type fakeSyncLogger struct {
	starts    int
	completes int
	records   []string
}

func (l *fakeSyncLogger) LogSyncStart(ctx context.Context, batch *domain.SyncBatch) error {
	l.starts++
	return nil
}
func (l *fakeSyncLogger) LogSyncComplete(ctx context.Context, batch *domain.SyncBatch) error {
	l.completes++
	return nil
}
func (l *fakeSyncLogger) LogRecordProcessed(ctx context.Context, batchID uuid.UUID, sourceID, status, errMsg string) error {
	l.records = append(l.records, sourceID+":"+status)
	return nil
}
func (l *fakeSyncLogger) LogAudit(ctx context.Context, entry domain.AuditEntry) error { return nil }
func (l *fakeSyncLogger) GetSyncHistory(ctx context.Context, source string, limit int64) ([]components.SyncLogEntry, error) {
	return nil, nil
}
func (l *fakeSyncLogger) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeBatchStore struct {
	batches    map[uuid.UUID]*domain.SyncBatch
	rawRecords map[uuid.UUID][]domain.RawRecord
	watermark  *time.Time
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		batches:    make(map[uuid.UUID]*domain.SyncBatch),
		rawRecords: make(map[uuid.UUID][]domain.RawRecord),
	}
}

func (s *fakeBatchStore) CreateBatch(ctx context.Context, source string, entityType domain.EntityType, metadata map[string]interface{}) (uuid.UUID, error) {
	id := uuid.New()
	s.batches[id] = &domain.SyncBatch{
		ID: id, Source: source, EntityType: entityType,
		StartedAt: time.Now().UTC(), Status: domain.BatchRunning, Metadata: metadata,
	}
	return id, nil
}
func (s *fakeBatchStore) CompleteBatch(ctx context.Context, batchID uuid.UUID, status domain.BatchStatus, counts domain.BatchCounts, batchErrors []domain.BatchError) error {
	batch := s.batches[batchID]
	batch.Status = status
	batch.Counts = counts
	batch.Errors = batchErrors
	now := time.Now().UTC()
	batch.CompletedAt = &now
	return nil
}
func (s *fakeBatchStore) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SyncBatch, error) {
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, errors.New(errors.ErrCodeBatchNotFound, "no such batch")
	}
	return batch, nil
}
func (s *fakeBatchStore) GetByBatch(ctx context.Context, source string, entityType domain.EntityType, batchID uuid.UUID) ([]domain.RawRecord, error) {
	return s.rawRecords[batchID], nil
}
func (s *fakeBatchStore) LatestSyncTime(ctx context.Context, source string, entityType domain.EntityType) (*time.Time, error) {
	return s.watermark, nil
}

type fakeMappingCache struct{ resets int }

func (c *fakeMappingCache) ResetBatchCache() { c.resets++ }

type fixture struct {
	pipeline  *Pipeline
	connector *fakeConnector
	loader    *fakeLoader
	logger    *fakeSyncLogger
	store     *fakeBatchStore
	norm      *fakeNormalizer
	cache     *fakeMappingCache
}

func newFixture(records []components.SourceRecord) *fixture {
	f := &fixture{
		connector: &fakeConnector{records: records},
		loader:    &fakeLoader{},
		logger:    &fakeSyncLogger{},
		store:     newFakeBatchStore(),
		norm:      &fakeNormalizer{existing: map[string]bool{}},
		cache:     &fakeMappingCache{},
	}
	f.pipeline = New(Config{
		Source:    "faketest",
		Connector: f.connector,
		Mappers:   map[domain.EntityType]components.Mapper{domain.EntityContact: &fakeMapper{}},
		Validator: &fakeValidator{},
		Normalizer: f.norm,
		Loader:    f.loader,
		Logger:    f.logger,
		Registry:  f.cache,
		RawZone:   f.store,
		Log:       logger.New(logger.Config{Level: "error"}),
	})
	return f
}

// --- tests ---

func TestExecuteCounterConservation(t *testing.T) {
	f := newFixture([]components.SourceRecord{
		{"id": "1", "name": "a"},
		{"id": "2", "name": "b"},
		{"id": "3", "name": "c"},
		{"id": "4", "name": "", "invalid_raw": false},
		{"id": "5", "fail_canon_map": true, "name": "e"},
	})
	f.norm.existing["3"] = true

	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, batch.Counts.Processed)
	assert.Equal(t, 2, batch.Counts.Created)
	assert.Equal(t, 1, batch.Counts.Updated)
	assert.Equal(t, 2, batch.Counts.Failed)
	assert.Equal(t, batch.Counts.Processed, batch.Counts.Created+batch.Counts.Updated+batch.Counts.Failed)
	assert.Equal(t, domain.BatchPartial, batch.Status)
	assert.Len(t, batch.Errors, 2)
	assert.NotNil(t, batch.CompletedAt)

	// Failed records never reach the canonical store; their raw copies are
	// also skipped because validation/mapping failed before the raw write.
	assert.Equal(t, 3, f.loader.canonicalLoads)
	assert.Equal(t, 1, f.logger.starts)
	assert.Equal(t, 1, f.logger.completes)
	assert.Len(t, f.logger.records, 5)
}

func TestExecuteAllSucceedCompletes(t *testing.T) {
	f := newFixture([]components.SourceRecord{
		{"id": "1", "name": "a"},
		{"id": "2", "name": "b"},
	})
	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.Counts.Created)
	assert.Equal(t, 2, f.loader.rawLoads)
	assert.Equal(t, 2, f.loader.servingLoads)
}

func TestExecuteAllFailedStatus(t *testing.T) {
	f := newFixture([]components.SourceRecord{
		{"id": "1", "fail_canon_map": true},
		{"id": "2", "fail_raw_map": true},
	})
	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchFailed, batch.Status)
	assert.Equal(t, 2, batch.Counts.Failed)
}

func TestExecuteEmptySourceCompletes(t *testing.T) {
	f := newFixture(nil)
	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Zero(t, batch.Counts.Processed)
}

func TestExecuteConnectRetriesOnce(t *testing.T) {
	f := newFixture([]components.SourceRecord{{"id": "1", "name": "a"}})
	f.connector.failConnects = 1

	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Equal(t, 2, f.connector.connects)
}

func TestExecuteConnectExhaustedFailsBatch(t *testing.T) {
	f := newFixture([]components.SourceRecord{{"id": "1", "name": "a"}})
	f.connector.failConnects = 2

	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.Error(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, domain.BatchFailed, batch.Status)
	assert.Zero(t, batch.Counts.Processed)
}

func TestExecuteFetchErrorCountsRecordFailed(t *testing.T) {
	f := newFixture([]components.SourceRecord{
		{"id": "1", "name": "a"},
		{"fetch_error": true},
		{"id": "3", "name": "c"},
	})
	batch, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Counts.Processed)
	assert.Equal(t, 2, batch.Counts.Created)
	assert.Equal(t, 1, batch.Counts.Failed)
	assert.Equal(t, domain.BatchPartial, batch.Status)
}

func TestExecuteIncrementalDerivesWatermark(t *testing.T) {
	f := newFixture(nil)
	watermark := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.store.watermark = &watermark

	_, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeIncremental, nil)
	require.NoError(t, err)
	require.NotNil(t, f.connector.lastSince)
	assert.Equal(t, watermark, *f.connector.lastSince)
}

func TestExecuteIncrementalCallerSinceWins(t *testing.T) {
	f := newFixture(nil)
	stored := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.store.watermark = &stored
	supplied := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeIncremental, &supplied)
	require.NoError(t, err)
	require.NotNil(t, f.connector.lastSince)
	assert.Equal(t, supplied, *f.connector.lastSince)
}

func TestExecuteFullResetsCaches(t *testing.T) {
	f := newFixture(nil)
	_, err := f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeFull, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.norm.resets)
	assert.Equal(t, 1, f.cache.resets)

	// Incremental batches keep the id cache warm.
	_, err = f.pipeline.Execute(context.Background(), domain.EntityContact, domain.ModeIncremental, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.norm.resets)
	assert.Equal(t, 2, f.cache.resets)
}

func TestExecuteUnknownEntityType(t *testing.T) {
	f := newFixture(nil)
	_, err := f.pipeline.Execute(context.Background(), domain.EntityAccount, domain.ModeFull, nil)
	require.Error(t, err)
}

func TestSyncSingle(t *testing.T) {
	f := newFixture(nil)
	f.connector.single = components.SourceRecord{"id": "w1", "name": "webhook contact"}

	batch, err := f.pipeline.SyncSingle(context.Background(), domain.EntityContact, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Counts.Processed)
	assert.Equal(t, 1, batch.Counts.Created)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Equal(t, true, batch.Metadata["single"])
}

func TestReplay(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	// Seed an original batch whose raw records are already in the zone.
	originalID, err := f.store.CreateBatch(ctx, "faketest", domain.EntityContact, nil)
	require.NoError(t, err)
	for _, rec := range []components.SourceRecord{
		{"id": "1", "name": "a"},
		{"id": "2", "name": "b"},
		{"id": "3", "name": "c"},
	} {
		raw, err := (&fakeMapper{}).MapToRaw(rec, originalID)
		require.NoError(t, err)
		f.store.rawRecords[originalID] = append(f.store.rawRecords[originalID], raw)
	}
	f.norm.existing["1"] = true
	f.norm.existing["2"] = true

	batch, err := f.pipeline.Replay(ctx, originalID)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Counts.Processed)
	assert.Equal(t, 2, batch.Counts.Updated)
	assert.Equal(t, 1, batch.Counts.Created)
	assert.Zero(t, batch.Counts.Failed)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Equal(t, originalID.String(), batch.Metadata["replay_of"])

	// Raw records are never re-written during replay.
	assert.Zero(t, f.loader.rawLoads)
	assert.Equal(t, 3, f.loader.canonicalLoads)
}

func TestReplayUnknownBatch(t *testing.T) {
	f := newFixture(nil)
	_, err := f.pipeline.Replay(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestReplayWrongSource(t *testing.T) {
	f := newFixture(nil)
	otherID, err := f.store.CreateBatch(context.Background(), "elsewhere", domain.EntityContact, nil)
	require.NoError(t, err)
	_, err = f.pipeline.Replay(context.Background(), otherID)
	require.Error(t, err)
}

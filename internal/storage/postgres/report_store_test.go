package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

func sampleReport(symbol string) *domain.QualityReport {
	r := domain.NewQualityReport(symbol)
	r.Add(domain.StageSchema, domain.CounterRecordsIn, 500)
	r.Add(domain.StageSchema, domain.CounterDroppedRecords, 2)
	r.Add(domain.StageDedupe, domain.CounterDuplicatesRemoved, 1)
	r.Add(domain.StageGaps, domain.CounterGapsTotal, 1)
	r.AddGap(&domain.Gap{
		Symbol:      symbol,
		Start:       time.Date(2024, 1, 9, 9, 32, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 9, 9, 34, 0, 0, time.UTC),
		MissingBars: 3,
		Repaired:    true,
	})
	r.AddNote("close range 99.00 .. 103.00")
	r.Finalize()
	return r
}

func TestReportStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	r := sampleReport("ACME")
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByRunID(ctx, r.RunID)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, "ACME", got.Symbol)
	assert.True(t, got.Finalized())
	assert.Equal(t, int64(500), got.Counter(domain.StageSchema, domain.CounterRecordsIn))
	assert.Equal(t, int64(1), got.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved))

	require.Len(t, got.Gaps, 1)
	gap := got.Gaps[0]
	assert.True(t, gap.Start.Equal(r.Gaps[0].Start))
	assert.True(t, gap.End.Equal(r.Gaps[0].End))
	assert.Equal(t, 3, gap.MissingBars)
	assert.True(t, gap.Repaired)
	assert.False(t, gap.Expected)

	require.Len(t, got.Notes, 1)
	assert.Equal(t, r.Notes[0], got.Notes[0])
}

func TestReportStore_DuplicateRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	r := sampleReport("ACME")
	require.NoError(t, store.Insert(ctx, r))

	err := store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestReportStore_RejectsInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, domain.NewQualityReport("ACME")), storage.ErrInvalidInput,
		"unfinalized report must be rejected")
}

func TestReportStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	_, err := store.GetByRunID(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReportStore_ListBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	older := sampleReport("ACME")
	older.StartedAt = time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	newer := sampleReport("ACME")
	newer.StartedAt = time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	other := sampleReport("EURUSD")

	for _, r := range []*domain.QualityReport{older, newer, other} {
		require.NoError(t, store.Insert(ctx, r))
	}

	got, err := store.ListBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.RunID, got[0].RunID, "newest report first")
	assert.Equal(t, older.RunID, got[1].RunID)
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

func finalizedReport(symbol string) *domain.QualityReport {
	r := domain.NewQualityReport(symbol)
	r.Add(domain.StageSchema, domain.CounterRecordsIn, 100)
	r.Add(domain.StageDedupe, domain.CounterDuplicatesRemoved, 3)
	r.AddGap(&domain.Gap{
		Symbol:      symbol,
		Start:       time.Date(2024, 1, 9, 9, 32, 0, 0, time.UTC),
		End:         time.Date(2024, 1, 9, 9, 34, 0, 0, time.UTC),
		MissingBars: 3,
	})
	r.AddNote("close range 99.00 .. 103.00")
	r.Finalize()
	return r
}

func TestReportStore_InsertAndGet(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	r := finalizedReport("ACME")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, r.RunID)
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if got.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved) != 3 {
		t.Errorf("Counters lost in round trip: %+v", got.Stages)
	}
	if len(got.Gaps) != 1 || len(got.Notes) != 1 {
		t.Errorf("Expected 1 gap and 1 note, got %d/%d", len(got.Gaps), len(got.Notes))
	}
	if !got.Finalized() {
		t.Error("Loaded report must be finalized")
	}
	if !got.FinishedAt.Equal(r.FinishedAt) {
		t.Errorf("FinishedAt changed in round trip: %v vs %v", got.FinishedAt, r.FinishedAt)
	}
}

func TestReportStore_DuplicateRunID(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	r := finalizedReport("ACME")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestReportStore_RejectsUnfinalized(t *testing.T) {
	store := NewReportStore()
	err := store.Insert(context.Background(), domain.NewQualityReport("ACME"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unfinalized report, got %v", err)
	}
}

func TestReportStore_NotFound(t *testing.T) {
	store := NewReportStore()
	_, err := store.GetByRunID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReportStore_ListBySymbolNewestFirst(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	older := finalizedReport("ACME")
	older.StartedAt = time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	newer := finalizedReport("ACME")
	newer.StartedAt = time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	other := finalizedReport("EURUSD")

	for _, r := range []*domain.QualityReport{older, newer, other} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.ListBySymbol(ctx, "ACME")
	if err != nil {
		t.Fatalf("ListBySymbol failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(result))
	}
	if result[0].RunID != newer.RunID {
		t.Error("Expected newest report first")
	}
}

func TestReportStore_CopyOnRead(t *testing.T) {
	store := NewReportStore()
	ctx := context.Background()

	r := finalizedReport("ACME")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByRunID(ctx, r.RunID)
	got.Stages[domain.StageSchema][domain.CounterRecordsIn] = 9999

	again, _ := store.GetByRunID(ctx, r.RunID)
	if again.Counter(domain.StageSchema, domain.CounterRecordsIn) != 100 {
		t.Error("Store leaked reader mutation")
	}
}

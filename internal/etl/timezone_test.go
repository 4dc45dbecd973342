package etl

import (
	"errors"
	"testing"
	"time"

	"market-etl-lab/internal/domain"
)

func parsedAt(ts time.Time, naive bool, close float64) ParsedRecord {
	return ParsedRecord{
		Bar:   &domain.Bar{Symbol: "EURUSD", Timestamp: ts, Open: close, High: close, Low: close, Close: close},
		Naive: naive,
	}
}

func TestNormalizeTime_NaiveWithSourceTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// Naive 09:30 wall clock in New York == 14:30 UTC in January (EST).
	records := []ParsedRecord{parsedAt(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC), true, 1.0)}
	cfg := DefaultConfig().Time
	cfg.SourceTimezone = ny

	report := domain.NewQualityReport("EURUSD")
	series, _, err := NormalizeTime(records, cfg, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	want := time.Date(2024, 1, 9, 14, 30, 0, 0, time.UTC)
	if !series[0].Timestamp.Equal(want) {
		t.Errorf("Expected %v, got %v", want, series[0].Timestamp)
	}
}

func TestNormalizeTime_NaiveAssumeUTC(t *testing.T) {
	records := []ParsedRecord{parsedAt(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC), true, 1.0)}

	report := domain.NewQualityReport("EURUSD")
	series, _, err := NormalizeTime(records, DefaultConfig().Time, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	if !series[0].Timestamp.Equal(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Assume-UTC should keep the wall clock, got %v", series[0].Timestamp)
	}
}

func TestNormalizeTime_RequireSourceDropsNaive(t *testing.T) {
	records := []ParsedRecord{
		parsedAt(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC), true, 1.0),
		parsedAt(time.Date(2024, 1, 9, 9, 31, 0, 0, time.UTC), false, 2.0),
	}
	cfg := DefaultConfig().Time
	cfg.NaivePolicy = NaiveRequireSource
	cfg.MaxInvalidFraction = 0.9

	report := domain.NewQualityReport("EURUSD")
	series, _, err := NormalizeTime(records, cfg, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("Expected naive record dropped, got %d records", len(series))
	}
	if got := report.Counter(domain.StageTime, domain.CounterInvalidRecords); got != 1 {
		t.Errorf("Expected invalid_records 1, got %d", got)
	}
}

func TestNormalizeTime_RequireSourceBudgetExceeded(t *testing.T) {
	records := []ParsedRecord{
		parsedAt(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC), true, 1.0),
	}
	cfg := DefaultConfig().Time
	cfg.NaivePolicy = NaiveRequireSource

	report := domain.NewQualityReport("EURUSD")
	_, _, err := NormalizeTime(records, cfg, report)
	if !errors.Is(err, ErrTimeNormalization) {
		t.Fatalf("Expected ErrTimeNormalization, got %v", err)
	}
}

func TestNormalizeTime_StableSortKeepsInputOrderOnTies(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)
	records := []ParsedRecord{
		parsedAt(ts.Add(time.Minute), false, 3.0),
		parsedAt(ts, false, 1.0),
		parsedAt(ts, false, 2.0), // same instant, arrived later
	}

	report := domain.NewQualityReport("EURUSD")
	series, _, err := NormalizeTime(records, DefaultConfig().Time, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	if series[0].Close != 1.0 || series[1].Close != 2.0 || series[2].Close != 3.0 {
		t.Errorf("Expected stable order 1,2,3, got %v,%v,%v",
			series[0].Close, series[1].Close, series[2].Close)
	}
}

func TestNominalInterval_LowerMedian(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)
	records := []ParsedRecord{
		parsedAt(ts, false, 1),
		parsedAt(ts.Add(1*time.Minute), false, 2),
		parsedAt(ts.Add(2*time.Minute), false, 3),
		parsedAt(ts.Add(6*time.Minute), false, 4), // one 4m gap must not skew the grid
	}

	report := domain.NewQualityReport("EURUSD")
	_, interval, err := NormalizeTime(records, DefaultConfig().Time, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	if interval != time.Minute {
		t.Errorf("Expected nominal interval 1m, got %v", interval)
	}
}

func TestNormalizeTime_IntervalOverride(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)
	records := []ParsedRecord{parsedAt(ts, false, 1), parsedAt(ts.Add(5*time.Minute), false, 2)}
	cfg := DefaultConfig().Time
	cfg.NominalInterval = time.Minute

	report := domain.NewQualityReport("EURUSD")
	_, interval, err := NormalizeTime(records, cfg, report)
	if err != nil {
		t.Fatalf("NormalizeTime: %v", err)
	}
	if interval != time.Minute {
		t.Errorf("Expected configured interval 1m, got %v", interval)
	}
}

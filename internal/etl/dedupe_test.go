package etl

import (
	"testing"
	"time"

	"market-etl-lab/internal/domain"
)

func barAt(ts time.Time, close float64, vol *float64) *domain.Bar {
	return &domain.Bar{Symbol: "EURUSD", Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: vol}
}

func TestDeduplicate_KeepLastDefault(t *testing.T) {
	// Duplicate timestamp with different closes: later ingestion wins.
	ts := time.Date(2024, 1, 9, 9, 31, 0, 0, time.UTC)
	series := domain.Series{
		barAt(ts.Add(-time.Minute), 100.5, nil),
		barAt(ts, 101.5, nil),
		barAt(ts, 101.7, nil), // corrected value, arrived later
	}

	report := domain.NewQualityReport("EURUSD")
	out := Deduplicate(series, DedupeConfig{Policy: DedupeKeepLast}, report)

	if len(out) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(out))
	}
	if out[1].Close != 101.7 {
		t.Errorf("Expected later close 101.7 kept, got %v", out[1].Close)
	}
	if got := report.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved); got != 1 {
		t.Errorf("Expected duplicates_removed 1, got %d", got)
	}
	if !out.IsStrictlyIncreasing() {
		t.Error("Output must have strictly increasing timestamps")
	}
}

func TestDeduplicate_KeepFirst(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 31, 0, 0, time.UTC)
	series := domain.Series{
		barAt(ts, 101.5, nil),
		barAt(ts, 101.7, nil),
	}

	report := domain.NewQualityReport("EURUSD")
	out := Deduplicate(series, DedupeConfig{Policy: DedupeKeepFirst}, report)

	if len(out) != 1 || out[0].Close != 101.5 {
		t.Fatalf("Expected first value 101.5 kept, got %+v", out)
	}
}

func TestDeduplicate_MaxVolume(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 31, 0, 0, time.UTC)
	series := domain.Series{
		barAt(ts, 101.5, domain.Vol(500)),
		barAt(ts, 101.7, domain.Vol(2000)),
		barAt(ts, 101.9, domain.Vol(100)),
	}

	report := domain.NewQualityReport("EURUSD")
	out := Deduplicate(series, DedupeConfig{Policy: DedupeMaxVolume}, report)

	if len(out) != 1 || out[0].Close != 101.7 {
		t.Fatalf("Expected max-volume bar 101.7 kept, got %+v", out[0])
	}
	if got := report.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved); got != 2 {
		t.Errorf("Expected duplicates_removed 2, got %d", got)
	}
}

func TestDeduplicate_MaxVolumeNilLoses(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 31, 0, 0, time.UTC)
	series := domain.Series{
		barAt(ts, 101.5, domain.Vol(500)),
		barAt(ts, 101.7, nil),
	}

	report := domain.NewQualityReport("EURUSD")
	out := Deduplicate(series, DedupeConfig{Policy: DedupeMaxVolume}, report)

	if out[0].Close != 101.5 {
		t.Errorf("Bar without volume must lose to one with volume, got %v", out[0].Close)
	}
}

func TestDeduplicate_NoDuplicates(t *testing.T) {
	ts := time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)
	series := domain.Series{
		barAt(ts, 1, nil),
		barAt(ts.Add(time.Minute), 2, nil),
	}

	report := domain.NewQualityReport("EURUSD")
	out := Deduplicate(series, DedupeConfig{Policy: DedupeKeepLast}, report)

	if len(out) != 2 {
		t.Fatalf("Expected passthrough, got %d bars", len(out))
	}
	if got := report.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved); got != 0 {
		t.Errorf("Expected duplicates_removed 0, got %d", got)
	}
}

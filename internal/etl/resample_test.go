package etl

import (
	"errors"
	"testing"
	"time"

	"market-etl-lab/internal/domain"
)

func fiveMinRule() domain.ResampleRule {
	return domain.ResampleRule{Label: "5m", Granularity: 5 * time.Minute}
}

// Six-bar 1-minute series 09:30-09:35 where 09:32-09:34 are synthetic
// forward fills (volume 0), as the repair engine would produce.
func repairedMinuteSeries() domain.Series {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	mk := func(min int, o, h, l, c, v float64, synth bool) *domain.Bar {
		return &domain.Bar{
			Symbol: "ACME", Timestamp: day.Add(9*time.Hour + time.Duration(min)*time.Minute),
			Open: o, High: h, Low: l, Close: c, Volume: domain.Vol(v), Synthetic: synth,
		}
	}
	return domain.Series{
		mk(30, 100, 101, 99, 100.5, 1200, false),
		mk(31, 100.5, 102, 100, 101.5, 800, false),
		mk(32, 101.5, 101.5, 101.5, 101.5, 0, true),
		mk(33, 101.5, 101.5, 101.5, 101.5, 0, true),
		mk(34, 101.5, 101.5, 101.5, 101.5, 0, true),
		mk(35, 101.5, 103, 101, 102.5, 500, false),
	}
}

func TestResample_FiveMinuteBuckets(t *testing.T) {
	report := domain.NewQualityReport("ACME")
	out, err := Resample(repairedMinuteSeries(), fiveMinRule(), false, report)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("Expected buckets [09:30, 09:35), [09:35, 09:40), got %d", len(out))
	}

	b := out[0]
	if !b.Timestamp.Equal(time.Date(2024, 1, 9, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Expected bucket start 09:30, got %v", b.Timestamp)
	}
	if b.Open != 100 {
		t.Errorf("open = first member's open: expected 100, got %v", b.Open)
	}
	if b.Close != 101.5 {
		t.Errorf("close = last member's close: expected 101.5, got %v", b.Close)
	}
	if b.High != 102 {
		t.Errorf("high = max of highs: expected 102, got %v", b.High)
	}
	if b.Low != 99 {
		t.Errorf("low = min of lows: expected 99, got %v", b.Low)
	}
	if b.Volume == nil || *b.Volume != 2000 {
		t.Errorf("volume = sum (synthetic bars contribute 0): expected 2000, got %v", b.Volume)
	}
	if !b.Synthetic {
		t.Error("Bucket containing synthetic members must be flagged synthetic")
	}

	if out[1].Synthetic {
		t.Error("Bucket of only real bars must not be synthetic")
	}
	if out[1].Open != 101.5 || out[1].Close != 102.5 || out[1].High != 103 || out[1].Low != 101 {
		t.Errorf("Unexpected second bucket: %+v", out[1])
	}
}

func TestResample_EmptyBucketsOmitted(t *testing.T) {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	series := domain.Series{
		ohlcBar(day.Add(9*time.Hour+30*time.Minute), 1, 1, 1, 1),
		ohlcBar(day.Add(10*time.Hour+30*time.Minute), 2, 2, 2, 2), // one empty 5m stretch between
	}

	report := domain.NewQualityReport("ACME")
	out, err := Resample(series, fiveMinRule(), false, report)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Empty buckets must be omitted, got %d buckets", len(out))
	}
}

func TestResample_MixedVolumeStrictFails(t *testing.T) {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	series := domain.Series{
		barAt(day.Add(9*time.Hour+30*time.Minute), 1, domain.Vol(100)),
		barAt(day.Add(9*time.Hour+31*time.Minute), 1, nil),
	}

	report := domain.NewQualityReport("ACME")
	_, err := Resample(series, fiveMinRule(), true, report)
	if !errors.Is(err, ErrAggregation) {
		t.Fatalf("Expected ErrAggregation in strict mode, got %v", err)
	}
}

func TestResample_MixedVolumeLenientDrops(t *testing.T) {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	series := domain.Series{
		barAt(day.Add(9*time.Hour+30*time.Minute), 1, domain.Vol(100)),
		barAt(day.Add(9*time.Hour+31*time.Minute), 1, nil),
	}

	report := domain.NewQualityReport("ACME")
	out, err := Resample(series, fiveMinRule(), false, report)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out[0].Volume != nil {
		t.Errorf("Lenient mode must drop the mixed bucket's volume, got %v", out[0].Volume)
	}
	if got := report.Counter(domain.StageResample, domain.CounterVolumeDropped); got != 1 {
		t.Errorf("Expected volume_dropped 1, got %d", got)
	}
}

func TestResample_UniformlyVolumelessOK(t *testing.T) {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	series := domain.Series{
		barAt(day.Add(9*time.Hour+30*time.Minute), 1, nil),
		barAt(day.Add(9*time.Hour+31*time.Minute), 2, nil),
	}

	report := domain.NewQualityReport("ACME")
	out, err := Resample(series, fiveMinRule(), true, report)
	if err != nil {
		t.Fatalf("A series without any volume must pass strict mode: %v", err)
	}
	if out[0].Volume != nil {
		t.Errorf("Expected no volume, got %v", out[0].Volume)
	}
}

func TestResample_SessionAnchoredAlignment(t *testing.T) {
	// Hourly buckets anchored at 09:30 instead of top of the hour.
	rule := domain.ResampleRule{Label: "1h", Granularity: time.Hour, Anchor: 9*time.Hour + 30*time.Minute}
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	series := domain.Series{
		ohlcBar(day.Add(9*time.Hour+45*time.Minute), 1, 1, 1, 1),
		ohlcBar(day.Add(10*time.Hour+15*time.Minute), 2, 2, 2, 2),
		ohlcBar(day.Add(10*time.Hour+45*time.Minute), 3, 3, 3, 3),
	}

	report := domain.NewQualityReport("ACME")
	out, err := Resample(series, rule, false, report)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected buckets at 09:30 and 10:30, got %d", len(out))
	}
	if !out[0].Timestamp.Equal(day.Add(9*time.Hour + 30*time.Minute)) {
		t.Errorf("Expected first bucket 09:30, got %v", out[0].Timestamp)
	}
	if !out[1].Timestamp.Equal(day.Add(10*time.Hour + 30*time.Minute)) {
		t.Errorf("Expected second bucket 10:30, got %v", out[1].Timestamp)
	}
	if out[0].Close != 2 {
		t.Errorf("10:15 bar belongs to the 09:30 bucket, close should be 2, got %v", out[0].Close)
	}
}

func TestResampleAll_MultipleRules(t *testing.T) {
	cfg := ResampleConfig{Rules: []domain.ResampleRule{
		fiveMinRule(),
		{Label: "1m", Granularity: time.Minute},
	}}

	report := domain.NewQualityReport("ACME")
	out, err := ResampleAll(repairedMinuteSeries(), cfg, report)
	if err != nil {
		t.Fatalf("ResampleAll: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected 2 timeframes, got %d", len(out))
	}
	if len(out["1m"]) != 6 {
		t.Errorf("1m resample of a 1m series is identity: expected 6 bars, got %d", len(out["1m"]))
	}
	if len(out["5m"]) != 2 {
		t.Errorf("Expected 2 5m buckets, got %d", len(out["5m"]))
	}
}

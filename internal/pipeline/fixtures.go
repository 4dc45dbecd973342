// Package pipeline supplies deterministic raw-record fixtures for demos
// and tests: realistic minute bars with the defects the engine exists to
// clean up (duplicates, intraday gaps, session boundaries, junk rows).
package pipeline

import (
	"math"
	"time"

	"market-etl-lab/internal/domain"
)

// Fixtures returns raw record batches for a small universe of symbols,
// keyed by symbol.
func Fixtures() map[string][]domain.RawRecord {
	return map[string][]domain.RawRecord{
		"ACME":   EquityFixture("ACME", 2),
		"GLOBEX": EquityFixture("GLOBEX", 1),
		"EURUSD": FXFixture("EURUSD"),
	}
}

// EquityFixture generates the given number of 09:30-16:00 UTC sessions of
// minute bars starting 2024-01-09, with three planted defects per
// session: one duplicated minute, one three-bar intraday gap and one
// unparsable row. Timestamps are naive session-local strings, the way
// exchange CSV dumps usually arrive.
func EquityFixture(symbol string, sessions int) []domain.RawRecord {
	var records []domain.RawRecord
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	for s := 0; s < sessions; s++ {
		open := day.AddDate(0, 0, s).Add(9*time.Hour + 30*time.Minute)
		price := 100.0 + 5*float64(s)

		for min := 0; min < 390; min++ {
			// Three-bar hole mid-morning.
			if min >= 47 && min <= 49 {
				continue
			}
			ts := open.Add(time.Duration(min) * time.Minute)
			bar := syntheticWalkBar(symbol, ts, price, min)
			records = append(records, bar)

			// A late correction re-sends one minute with a new close.
			if min == 95 {
				dup := syntheticWalkBar(symbol, ts, price, min)
				dup["close"] = bar["close"].(float64) + 0.02
				records = append(records, dup)
			}
		}

		// A junk row the schema stage should drop.
		records = append(records, domain.RawRecord{
			"timestamp": "not-a-time",
			"open":      "n/a",
			"high":      0.0,
			"low":       0.0,
			"close":     0.0,
		})
	}
	return records
}

// FXFixture generates one hour of minute bars for a 24-hour market,
// timestamped in RFC 3339 UTC with no planted gaps. It exercises the
// always-open calendar path and volume-less aggregation.
func FXFixture(symbol string) []domain.RawRecord {
	var records []domain.RawRecord
	start := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	for min := 0; min < 60; min++ {
		ts := start.Add(time.Duration(min) * time.Minute)
		rec := syntheticWalkBar(symbol, ts, 1.0940, min)
		rec["timestamp"] = ts.Format(time.RFC3339)
		delete(rec, "volume") // spot FX feeds carry no volume
		records = append(records, rec)
	}
	return records
}

// syntheticWalkBar builds one plausible OHLC bar on a slow sine walk.
// Deterministic: same inputs, same bar.
func syntheticWalkBar(symbol string, ts time.Time, base float64, step int) domain.RawRecord {
	drift := base * 0.002 * math.Sin(float64(step)/29)
	open := base + drift
	close := open + base*0.0004*math.Cos(float64(step)/7)
	high := math.Max(open, close) + base*0.0002
	low := math.Min(open, close) - base*0.0002

	return domain.RawRecord{
		"symbol":    symbol,
		"timestamp": ts.Format("2006-01-02 15:04:05"),
		"open":      round5(open),
		"high":      round5(high),
		"low":       round5(low),
		"close":     round5(close),
		"volume":    float64(900 + 37*(step%13)),
	}
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

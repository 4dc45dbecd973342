package etl

import (
	"fmt"
	"sort"
	"time"

	"market-etl-lab/internal/domain"
)

// NormalizeTime converts all timestamps to UTC, establishes the nominal
// sampling interval and sorts the series. The sort is stable: records
// sharing a timestamp keep their input order so the deduplicator's
// keep-first/keep-last policies stay deterministic.
//
// Naive wall-clock timestamps are reinterpreted in cfg.SourceTimezone.
// Ambiguous or non-existent local times around DST transitions resolve
// the way time.Date does: deterministically, never by guessing per
// record. With no source timezone the NaivePolicy decides: assume UTC,
// or drop the record under NaiveRequireSource.
func NormalizeTime(records []ParsedRecord, cfg TimeConfig, report *domain.QualityReport) (domain.Series, time.Duration, error) {
	report.Touch(domain.StageTime)
	report.Add(domain.StageTime, domain.CounterRecordsIn, int64(len(records)))

	series := make(domain.Series, 0, len(records))
	invalid := int64(0)

	for _, rec := range records {
		bar := rec.Bar
		switch {
		case !rec.Naive:
			bar.Timestamp = bar.Timestamp.UTC()
		case cfg.SourceTimezone != nil:
			bar.Timestamp = relocalize(bar.Timestamp, cfg.SourceTimezone)
		case cfg.NaivePolicy == NaiveRequireSource:
			invalid++
			continue
		default: // NaiveAssumeUTC: the naive wall clock already is UTC
			bar.Timestamp = bar.Timestamp.UTC()
		}
		series = append(series, bar)
	}

	report.Add(domain.StageTime, domain.CounterInvalidRecords, invalid)
	report.Add(domain.StageTime, domain.CounterDroppedRecords, invalid)

	if len(records) > 0 {
		if frac := float64(invalid) / float64(len(records)); frac > cfg.MaxInvalidFraction {
			return nil, 0, fmt.Errorf("%w: %d of %d timestamps unconvertible (%.0f%% > %.0f%% budget)",
				ErrTimeNormalization, invalid, len(records), frac*100, cfg.MaxInvalidFraction*100)
		}
	}

	// Authoritative sort before deduplication; ties keep input order.
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	interval := cfg.NominalInterval
	if interval <= 0 {
		interval = nominalInterval(series)
	}

	report.Add(domain.StageTime, domain.CounterRecordsOut, int64(len(series)))
	return series, interval, nil
}

// relocalize reinterprets the wall-clock fields of a naive timestamp in
// the source location and converts to UTC.
func relocalize(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc).UTC()
}

// nominalInterval estimates the sampling grid as the median of positive
// consecutive deltas. Zero deltas (duplicates, removed later) are
// ignored; fewer than two distinct timestamps yield 0, which disables
// gap detection downstream.
func nominalInterval(series domain.Series) time.Duration {
	deltas := make([]time.Duration, 0, len(series))
	for i := 1; i < len(series); i++ {
		if d := series[i].Timestamp.Sub(series[i-1].Timestamp); d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	// Lower median: with an even count the smaller middle delta wins, so
	// a run of regular bars around one large gap keeps the fine grid.
	return deltas[(len(deltas)-1)/2]
}

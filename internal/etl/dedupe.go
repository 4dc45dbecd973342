package etl

import (
	"market-etl-lab/internal/domain"
)

// Deduplicate collapses consecutive bars sharing a canonical timestamp.
// The input must already be sorted (stable, input order preserved on
// ties); the output carries the uniqueness invariant.
//
// Tie-break policies:
//   - keep_last (default): later ingestion wins, assumed corrected value
//   - keep_first: original value wins
//   - max_volume: the bar with the largest volume wins; bars without
//     volume lose to any bar with one, ties fall back to keep_last
func Deduplicate(series domain.Series, cfg DedupeConfig, report *domain.QualityReport) domain.Series {
	report.Touch(domain.StageDedupe)
	report.Add(domain.StageDedupe, domain.CounterRecordsIn, int64(len(series)))

	out := make(domain.Series, 0, len(series))
	removed := int64(0)

	for _, bar := range series {
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(bar.Timestamp) {
			out = append(out, bar)
			continue
		}
		removed++
		kept := out[len(out)-1]
		switch cfg.Policy {
		case DedupeKeepFirst:
			// kept stays
		case DedupeMaxVolume:
			if maxVolumeWins(bar, kept) {
				out[len(out)-1] = bar
			}
		default: // DedupeKeepLast
			out[len(out)-1] = bar
		}
	}

	report.Add(domain.StageDedupe, domain.CounterDuplicatesRemoved, removed)
	report.Add(domain.StageDedupe, domain.CounterRecordsOut, int64(len(out)))
	return out
}

// maxVolumeWins decides whether candidate replaces kept under the
// max_volume policy. Bars without volume lose to any bar with one;
// full ties fall back to keep-last.
func maxVolumeWins(candidate, kept *domain.Bar) bool {
	switch {
	case candidate.Volume == nil:
		return kept.Volume == nil
	case kept.Volume == nil:
		return true
	default:
		return *candidate.Volume >= *kept.Volume
	}
}

package etl

import (
	"time"

	"market-etl-lab/internal/calendar"
	"market-etl-lab/internal/domain"
)

// ClassifyGaps walks the deduplicated series and detects runs of missing
// grid instants. A consecutive delta above nominal * cfg.ToleranceFactor
// opens a candidate gap spanning the grid instants strictly between the
// two real bars.
//
// Each missing instant is classified independently against the calendar,
// so a candidate gap straddling a session boundary is clipped: it splits
// into an expected run (market closed) and an unexpected run (missing
// data). Expected gaps are left alone; unexpected ones are repair
// candidates. Every classified gap lands in the report.
//
// A nil calendar means an always-open market: every gap is unexpected.
func ClassifyGaps(series domain.Series, nominal time.Duration, cfg GapConfig, cal calendar.Calendar, report *domain.QualityReport) []*domain.Gap {
	report.Touch(domain.StageGaps)

	if nominal <= 0 || len(series) < 2 {
		return nil
	}
	if cal == nil {
		cal = calendar.AlwaysOpen{}
	}

	threshold := time.Duration(float64(nominal) * cfg.ToleranceFactor)
	symbol := series.Symbol()

	var gaps []*domain.Gap
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if cur.Timestamp.Sub(prev.Timestamp) <= threshold {
			continue
		}

		// Enumerate missing grid instants and split them into runs of
		// uniform classification.
		var run *domain.Gap
		for t := prev.Timestamp.Add(nominal); t.Before(cur.Timestamp); t = t.Add(nominal) {
			expected := !cal.IsTrading(t)
			if run != nil && run.Expected == expected {
				run.End = t
				run.MissingBars++
				continue
			}
			if run != nil {
				gaps = append(gaps, run)
			}
			run = &domain.Gap{
				Symbol:      symbol,
				Start:       t,
				End:         t,
				MissingBars: 1,
				Expected:    expected,
			}
		}
		if run != nil {
			gaps = append(gaps, run)
		}
	}

	for _, g := range gaps {
		report.AddGap(g)
		report.Add(domain.StageGaps, domain.CounterGapsTotal, 1)
		if g.Expected {
			report.Add(domain.StageGaps, domain.CounterGapsExpected, 1)
		} else {
			report.Add(domain.StageGaps, domain.CounterGapsUnexpected, 1)
			report.Add(domain.StageGaps, domain.CounterMissingBars, int64(g.MissingBars))
		}
	}
	return gaps
}

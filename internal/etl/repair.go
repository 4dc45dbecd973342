package etl

import (
	"fmt"
	"sort"
	"time"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/lookup"
)

// Repair fills unexpected gaps with synthetic bars. Expected gaps are
// never touched, and neither are real bars: the output is the input plus
// synthesized bars, re-sorted.
//
// Strategies:
//   - forward_fill: carry the previous real close as open=high=low=close
//   - backward_fill: carry the next real open, symmetrically
//   - interpolate: linear interpolation of each OHLC field between the
//     bracketing real bars
//
// Synthetic volume is always 0, never interpolated: an interpolated
// volume has no market meaning. It is nil when neither bracketing bar
// carries volume, so volume-less series stay volume-less.
//
// A gap with no bracketing bar on the required side is left unrepaired
// and counted as unrepairable_gaps; data is never fabricated from
// nothing. Repaired gaps get their Repaired flag set in place, which the
// quality report observes through its gap list.
func Repair(series domain.Series, gaps []*domain.Gap, nominal time.Duration, cfg RepairConfig, report *domain.QualityReport) (domain.Series, error) {
	report.Touch(domain.StageRepair)
	report.Add(domain.StageRepair, domain.CounterRecordsIn, int64(len(series)))

	switch cfg.Strategy {
	case RepairForwardFill, RepairBackwardFill, RepairInterpolate:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrRepair, cfg.Strategy)
	}

	out := make(domain.Series, len(series))
	copy(out, series)

	for _, g := range gaps {
		if g.Expected {
			continue
		}
		synth, ok := fillGap(series, g, nominal, cfg.Strategy)
		if !ok {
			report.Add(domain.StageRepair, domain.CounterUnrepairableGaps, 1)
			continue
		}
		g.Repaired = true
		out = append(out, synth...)
		report.Add(domain.StageRepair, domain.CounterBarsSynthesized, int64(len(synth)))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	report.Add(domain.StageRepair, domain.CounterRecordsOut, int64(len(out)))
	return out, nil
}

// fillGap synthesizes the bars for one unexpected gap. ok is false when
// the strategy's required bracketing bar does not exist.
func fillGap(series domain.Series, g *domain.Gap, nominal time.Duration, strategy string) ([]*domain.Bar, bool) {
	prev := lookup.BarBefore(series, g.Start)
	next := lookup.BarAfter(series, g.End)

	switch strategy {
	case RepairForwardFill:
		if prev == nil {
			return nil, false
		}
	case RepairBackwardFill:
		if next == nil {
			return nil, false
		}
	case RepairInterpolate:
		if prev == nil || next == nil {
			return nil, false
		}
	}

	var volume *float64
	if (prev != nil && prev.Volume != nil) || (next != nil && next.Volume != nil) {
		volume = domain.Vol(0)
	}

	var synth []*domain.Bar
	for t := g.Start; !t.After(g.End); t = t.Add(nominal) {
		bar := &domain.Bar{
			Symbol:    g.Symbol,
			Timestamp: t,
			Synthetic: true,
		}
		if volume != nil {
			bar.Volume = domain.Vol(0)
		}
		switch strategy {
		case RepairForwardFill:
			bar.Open, bar.High, bar.Low, bar.Close = prev.Close, prev.Close, prev.Close, prev.Close
		case RepairBackwardFill:
			bar.Open, bar.High, bar.Low, bar.Close = next.Open, next.Open, next.Open, next.Open
		case RepairInterpolate:
			frac := float64(t.Sub(prev.Timestamp)) / float64(next.Timestamp.Sub(prev.Timestamp))
			bar.Open = lerp(prev.Open, next.Open, frac)
			bar.High = lerp(prev.High, next.High, frac)
			bar.Low = lerp(prev.Low, next.Low, frac)
			bar.Close = lerp(prev.Close, next.Close, frac)
		}
		synth = append(synth, bar)
	}
	return synth, true
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

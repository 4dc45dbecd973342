package etl

import (
	"fmt"
	"math"
	"sort"

	"market-etl-lab/internal/domain"
)

// Thresholds for the price-jump heuristic: a close more than 100x above
// or 100x below the series median is almost certainly a data error, not
// a market move.
const (
	jumpRatioHigh = 100.0
	jumpRatioLow  = 0.01
)

// ComputeOutlierStats appends light data-quality heuristics to the
// report: high-low range statistics and a close-vs-median jump flag.
// It never modifies the series.
func ComputeOutlierStats(series domain.Series, report *domain.QualityReport) {
	report.Touch(domain.StageReport)
	if len(series) == 0 {
		return
	}

	var rangeSum, rangeMax float64
	closes := make([]float64, 0, len(series))
	for _, b := range series {
		r := b.High - b.Low
		rangeSum += r
		if r > rangeMax {
			rangeMax = r
		}
		closes = append(closes, b.Close)
	}
	report.AddNote(fmt.Sprintf("mean high-low range %.6g, max %.6g",
		rangeSum/float64(len(series)), rangeMax))

	median := medianOf(closes)
	if median == 0 || math.IsNaN(median) {
		return
	}
	minClose, maxClose := closes[0], closes[0]
	for _, c := range closes[1:] {
		if c < minClose {
			minClose = c
		}
		if c > maxClose {
			maxClose = c
		}
	}
	if maxClose/median > jumpRatioHigh || minClose/median < jumpRatioLow {
		report.Add(domain.StageReport, domain.CounterOutlierFlags, 1)
		report.AddNote(fmt.Sprintf("suspicious price jump: close range [%.6g, %.6g] vs median %.6g",
			minClose, maxClose, median))
	}
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Package lookup provides timestamp-indexed lookups over sorted series.
package lookup

import (
	"sort"
	"time"

	"market-etl-lab/internal/domain"
)

// BarBefore returns the last bar strictly before target, or nil when the
// series starts at or after target. The series must be sorted.
func BarBefore(series domain.Series, target time.Time) *domain.Bar {
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(target)
	})
	if i == 0 {
		return nil
	}
	return series[i-1]
}

// BarAfter returns the first bar strictly after target, or nil when the
// series ends at or before target. The series must be sorted.
func BarAfter(series domain.Series, target time.Time) *domain.Bar {
	i := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(target)
	})
	if i == len(series) {
		return nil
	}
	return series[i]
}

// BarAt returns the bar at or before target, or nil when the series
// starts after target. Consumers replaying a cleaned series use this to
// read "the value as of t".
func BarAt(series domain.Series, target time.Time) *domain.Bar {
	i := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(target)
	})
	if i == 0 {
		return nil
	}
	return series[i-1]
}

package domain

import "time"

// Series is the ordered bar sequence for a single symbol.
// After deduplication the timestamps are strictly increasing and unique;
// every stage that consumes a Series owns it exclusively for the duration
// of the call and returns a new slice.
type Series []*Bar

// Symbol returns the symbol of the first bar, or "" for an empty series.
func (s Series) Symbol() string {
	if len(s) == 0 {
		return ""
	}
	return s[0].Symbol
}

// IsStrictlyIncreasing reports whether timestamps are strictly increasing,
// which implies uniqueness.
func (s Series) IsStrictlyIncreasing() bool {
	for i := 1; i < len(s); i++ {
		if !s[i-1].Timestamp.Before(s[i].Timestamp) {
			return false
		}
	}
	return true
}

// Start returns the first timestamp, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// End returns the last timestamp, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// SyntheticCount returns the number of repaired bars in the series.
func (s Series) SyntheticCount() int {
	n := 0
	for _, b := range s {
		if b.Synthetic {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	for i, b := range s {
		out[i] = b.Clone()
	}
	return out
}

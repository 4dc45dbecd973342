package domain

import (
	"fmt"
	"time"
)

// RawRecord is one row as delivered by the ingestion collaborator:
// arbitrary column names, values as strings, numbers or timestamps.
// The schema normalizer maps it onto a Bar.
type RawRecord map[string]any

// Bar is one validated OHLC record on the canonical grid.
// Timestamps are always UTC instants. Immutable once validated:
// pipeline stages return new bars instead of mutating existing ones.
type Bar struct {
	Symbol    string
	Timestamp time.Time // UTC
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *float64 // nil when the source carries no volume
	Synthetic bool     // true when created by gap repair, never set on real data
}

// Validate checks the OHLC domain invariant:
//
//	low <= min(open, close) <= max(open, close) <= high
//
// tolerance absorbs float noise from upstream conversions (e.g. a high
// that is 1e-9 below the open is still accepted).
func (b *Bar) Validate(tolerance float64) error {
	if tolerance < 0 {
		tolerance = 0
	}
	lo, hi := b.Open, b.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if b.Low > lo+tolerance {
		return fmt.Errorf("low %v above min(open, close) %v", b.Low, lo)
	}
	if b.High < hi-tolerance {
		return fmt.Errorf("high %v below max(open, close) %v", b.High, hi)
	}
	if b.High < b.Low-tolerance {
		return fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	if b.Volume != nil && *b.Volume < 0 {
		return fmt.Errorf("negative volume %v", *b.Volume)
	}
	return nil
}

// Clone returns a deep copy of the bar.
func (b *Bar) Clone() *Bar {
	c := *b
	if b.Volume != nil {
		v := *b.Volume
		c.Volume = &v
	}
	return &c
}

// Vol is a convenience constructor for optional volumes.
func Vol(v float64) *float64 { return &v }

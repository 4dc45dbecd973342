package domain

import "time"

// ResampleRule describes one target timeframe for the resampler.
type ResampleRule struct {
	Label       string        // e.g. "5m", "1h"; used as output key
	Granularity time.Duration // bucket width, must be > 0
	Anchor      time.Duration // bucket alignment offset from midnight UTC; 0 = top of the unit
}

// Common granularities.
const (
	Granularity1Min  = time.Minute
	Granularity5Min  = 5 * time.Minute
	Granularity15Min = 15 * time.Minute
	Granularity1Hour = time.Hour
	Granularity1Day  = 24 * time.Hour
)

// BucketStart returns the left-closed bucket an instant falls into.
// Buckets align to UTC calendar boundaries, shifted by Anchor so a
// session-anchored rule (e.g. anchor 9h30m, granularity 1h) produces
// buckets 09:30, 10:30, ... instead of top-of-hour.
func (r ResampleRule) BucketStart(t time.Time) time.Time {
	shifted := t.Add(-r.Anchor)
	return shifted.Truncate(r.Granularity).Add(r.Anchor)
}

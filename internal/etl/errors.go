package etl

import "errors"

// Engine error kinds. Stage errors wrap these sentinels so callers can
// classify failures with errors.Is.
var (
	// ErrSchema is returned when the canonical schema cannot be
	// established (missing required columns) or the invalid-record
	// fraction crosses the configured threshold.
	ErrSchema = errors.New("schema normalization failed")

	// ErrTimeNormalization is returned when timestamps cannot be
	// converted to UTC beyond the configured error budget.
	ErrTimeNormalization = errors.New("time normalization failed")

	// ErrRepair is returned for an unknown repair strategy. Unrepairable
	// gaps are not errors: they stay in the output and are counted.
	ErrRepair = errors.New("gap repair failed")

	// ErrAggregation is returned by the resampler in strict mode when a
	// bucket mixes bars with and without volume.
	ErrAggregation = errors.New("resample aggregation failed")

	// ErrConfig is returned for unknown policy names or out-of-range
	// options. Unknown options fail fast instead of being ignored.
	ErrConfig = errors.New("invalid pipeline configuration")
)

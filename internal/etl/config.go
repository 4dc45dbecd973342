package etl

import (
	"fmt"
	"time"

	"market-etl-lab/internal/domain"
)

// Deduplication tie-break policies.
const (
	DedupeKeepFirst = "keep_first"
	DedupeKeepLast  = "keep_last" // default: later ingestion wins
	DedupeMaxVolume = "max_volume"
)

// Gap repair strategies.
const (
	RepairForwardFill  = "forward_fill"
	RepairBackwardFill = "backward_fill"
	RepairInterpolate  = "interpolate"
)

// Timezone policies for records whose timestamps carry no zone info.
const (
	NaiveAssumeUTC     = "assume_utc"
	NaiveRequireSource = "require_source"
)

// SchemaConfig controls the schema normalizer.
type SchemaConfig struct {
	// ColumnMap maps canonical fields ("timestamp", "open", "high",
	// "low", "close", "volume", "symbol") to accepted source column
	// names, matched case-insensitively.
	ColumnMap map[string][]string

	// PriceTolerance absorbs float noise when checking the OHLC domain
	// invariant.
	PriceTolerance float64

	// MaxInvalidFraction is the invalid-record fraction above which the
	// whole run fails instead of dropping records one by one.
	MaxInvalidFraction float64

	// DefaultSymbol is used when no symbol column maps (e.g. inferred
	// from the source file name by the ingestion collaborator).
	DefaultSymbol string
}

// TimeConfig controls the time normalizer.
type TimeConfig struct {
	// SourceTimezone interprets naive timestamps. nil means the
	// NaivePolicy decides.
	SourceTimezone *time.Location

	// NaivePolicy is NaiveAssumeUTC or NaiveRequireSource.
	NaivePolicy string

	// MaxInvalidFraction mirrors SchemaConfig: unconvertible timestamps
	// are dropped and counted until this fraction is crossed.
	MaxInvalidFraction float64

	// NominalInterval overrides the estimated sampling interval. Zero
	// means estimate from the data (median of consecutive deltas).
	NominalInterval time.Duration
}

// DedupeConfig controls the deduplicator.
type DedupeConfig struct {
	Policy string // DedupeKeepFirst, DedupeKeepLast or DedupeMaxVolume
}

// GapConfig controls the gap classifier.
type GapConfig struct {
	// ToleranceFactor opens a candidate gap when a consecutive delta
	// exceeds nominal_interval * ToleranceFactor.
	ToleranceFactor float64
}

// RepairConfig controls the repair engine.
type RepairConfig struct {
	Strategy string // RepairForwardFill, RepairBackwardFill or RepairInterpolate
}

// ResampleConfig controls the resampler.
type ResampleConfig struct {
	Rules []domain.ResampleRule

	// StrictVolume fails aggregation when a bucket mixes bars with and
	// without volume; lenient mode drops the bucket's volume instead.
	StrictVolume bool
}

// Config is the full per-symbol engine configuration, one explicit
// struct per stage.
type Config struct {
	Schema   SchemaConfig
	Time     TimeConfig
	Dedupe   DedupeConfig
	Gaps     GapConfig
	Repair   RepairConfig
	Resample ResampleConfig
}

// DefaultConfig returns the documented defaults: keep-last dedup,
// forward-fill repair, tolerance factor 1.5, assume-UTC naive policy,
// 20% invalid-record budget.
func DefaultConfig() Config {
	return Config{
		Schema: SchemaConfig{
			ColumnMap: map[string][]string{
				"timestamp": {"timestamp", "datetime", "time", "ts", "date"},
				"open":      {"open", "o"},
				"high":      {"high", "h"},
				"low":       {"low", "l"},
				"close":     {"close", "c"},
				"volume":    {"volume", "vol", "tickvol"},
				"symbol":    {"symbol", "ticker", "pair", "instrument", "sym"},
			},
			PriceTolerance:     1e-9,
			MaxInvalidFraction: 0.2,
		},
		Time: TimeConfig{
			NaivePolicy:        NaiveAssumeUTC,
			MaxInvalidFraction: 0.2,
		},
		Dedupe: DedupeConfig{Policy: DedupeKeepLast},
		Gaps:   GapConfig{ToleranceFactor: 1.5},
		Repair: RepairConfig{Strategy: RepairForwardFill},
	}
}

// Validate fails fast on unknown policy names and out-of-range options.
func (c Config) Validate() error {
	switch c.Dedupe.Policy {
	case DedupeKeepFirst, DedupeKeepLast, DedupeMaxVolume:
	default:
		return fmt.Errorf("%w: unknown dedupe policy %q", ErrConfig, c.Dedupe.Policy)
	}
	switch c.Repair.Strategy {
	case RepairForwardFill, RepairBackwardFill, RepairInterpolate:
	default:
		return fmt.Errorf("%w: unknown repair strategy %q", ErrConfig, c.Repair.Strategy)
	}
	switch c.Time.NaivePolicy {
	case NaiveAssumeUTC, NaiveRequireSource:
	default:
		return fmt.Errorf("%w: unknown naive-timestamp policy %q", ErrConfig, c.Time.NaivePolicy)
	}
	if c.Gaps.ToleranceFactor < 1 {
		return fmt.Errorf("%w: gap tolerance factor %v below 1", ErrConfig, c.Gaps.ToleranceFactor)
	}
	if c.Schema.MaxInvalidFraction < 0 || c.Schema.MaxInvalidFraction > 1 {
		return fmt.Errorf("%w: schema invalid fraction %v outside [0, 1]", ErrConfig, c.Schema.MaxInvalidFraction)
	}
	if c.Time.MaxInvalidFraction < 0 || c.Time.MaxInvalidFraction > 1 {
		return fmt.Errorf("%w: time invalid fraction %v outside [0, 1]", ErrConfig, c.Time.MaxInvalidFraction)
	}
	for _, rule := range c.Resample.Rules {
		if rule.Granularity <= 0 {
			return fmt.Errorf("%w: resample rule %q has non-positive granularity", ErrConfig, rule.Label)
		}
		if rule.Anchor < 0 || rule.Anchor >= 24*time.Hour {
			return fmt.Errorf("%w: resample rule %q anchor %v outside [0, 24h)", ErrConfig, rule.Label, rule.Anchor)
		}
	}
	return nil
}

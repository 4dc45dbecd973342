package etl

import (
	"fmt"

	"market-etl-lab/internal/domain"
)

// Resample aggregates a canonical fine series into the coarser timeframe
// of one rule. Buckets are non-overlapping left-closed intervals aligned
// per rule.BucketStart; a bucket with no contributing bars is omitted,
// since synthesizing bars is the repair engine's job, not the resampler's.
//
// Aggregation over the member bars in time order:
//
//	open  = first member's open     close  = last member's close
//	high  = max of members' highs   low    = min of members' lows
//	volume = sum of members' volumes
//
// A bucket mixing bars with and without volume fails with ErrAggregation
// in strict mode; lenient mode emits the bucket without volume and
// counts it. Buckets whose members uniformly lack volume emit no volume
// in either mode. A bucket is synthetic when any member was synthesized,
// so provenance survives resampling.
func Resample(series domain.Series, rule domain.ResampleRule, strictVolume bool, report *domain.QualityReport) (domain.Series, error) {
	report.Touch(domain.StageResample)

	if rule.Granularity <= 0 {
		return nil, fmt.Errorf("%w: rule %q has non-positive granularity", ErrAggregation, rule.Label)
	}

	var out domain.Series
	var bucket *domain.Bar
	var volSum float64
	var sawVolume, sawMissing bool

	flush := func() error {
		if bucket == nil {
			return nil
		}
		switch {
		case sawVolume && !sawMissing:
			bucket.Volume = domain.Vol(volSum)
		case sawVolume && sawMissing:
			if strictVolume {
				return fmt.Errorf("%w: rule %q bucket %s mixes bars with and without volume",
					ErrAggregation, rule.Label, bucket.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
			}
			report.Add(domain.StageResample, domain.CounterVolumeDropped, 1)
		}
		out = append(out, bucket)
		bucket = nil
		return nil
	}

	for _, bar := range series {
		start := rule.BucketStart(bar.Timestamp)
		if bucket == nil || !bucket.Timestamp.Equal(start) {
			if err := flush(); err != nil {
				return nil, err
			}
			bucket = &domain.Bar{
				Symbol:    bar.Symbol,
				Timestamp: start,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Synthetic: bar.Synthetic,
			}
			volSum, sawVolume, sawMissing = 0, false, false
		} else {
			// Aggregate into the open bucket.
			bucket.Close = bar.Close
			if bar.High > bucket.High {
				bucket.High = bar.High
			}
			if bar.Low < bucket.Low {
				bucket.Low = bar.Low
			}
			if bar.Synthetic {
				bucket.Synthetic = true
			}
		}
		if bar.Volume != nil {
			volSum += *bar.Volume
			sawVolume = true
		} else {
			sawMissing = true
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	report.Add(domain.StageResample, domain.CounterBucketsEmitted, int64(len(out)))
	return out, nil
}

// ResampleAll applies every configured rule to the canonical series,
// keyed by rule label. A strict-mode aggregation failure aborts only the
// resample step; the caller still has the fine-grained series.
func ResampleAll(series domain.Series, cfg ResampleConfig, report *domain.QualityReport) (map[string]domain.Series, error) {
	report.Touch(domain.StageResample)

	out := make(map[string]domain.Series, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		resampled, err := Resample(series, rule, cfg.StrictVolume, report)
		if err != nil {
			return nil, err
		}
		out[rule.Label] = resampled
	}
	return out, nil
}

// Package etl implements the transformation engine: a staged, pure
// pipeline turning raw timestamped price records into a canonical,
// gap-aware, multi-timeframe series with auditable quality metrics.
//
// Stages run strictly in sequence over in-memory slices:
//
//	raw records -> schema -> time -> dedupe -> gaps -> repair -> resample
//
// Every stage returns a new value and contributes counters to the run's
// QualityReport; nothing is mutated across runs, so independent symbols
// can run in parallel without locks.
package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-etl-lab/internal/calendar"
	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/observability"
)

// Result is one symbol's pipeline output: the canonical fine-grained
// series, one resampled series per configured rule, and the finalized
// quality report. All values are handed to the caller by ownership
// transfer; the engine keeps no reference.
type Result struct {
	Symbol          string
	Canonical       domain.Series
	Resampled       map[string]domain.Series
	NominalInterval time.Duration
	Report          *domain.QualityReport
}

// Runner executes the full pipeline for one symbol at a time.
type Runner struct {
	cfg     Config
	cal     calendar.Calendar
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewRunner validates the configuration and creates a runner. A nil
// calendar means an always-open market.
func NewRunner(cfg Config, cal calendar.Calendar, log zerolog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cal == nil {
		cal = calendar.AlwaysOpen{}
	}
	return &Runner{cfg: cfg, cal: cal, log: log}, nil
}

// WithMetrics attaches Prometheus metrics to the runner.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes all stages for one symbol. Per-record failures are
// recovered and counted; only structural failures (unestablishable
// schema, error budget crossed) abort the run, with the partially built
// report returned alongside the error. A strict-mode aggregation failure
// aborts only the resample step: the canonical series is still returned.
func (r *Runner) Run(ctx context.Context, symbol string, records []domain.RawRecord) (*Result, error) {
	started := time.Now()
	report := domain.NewQualityReport(symbol)
	log := r.log.With().Str("symbol", symbol).Str("run_id", report.RunID).Logger()
	result := &Result{Symbol: symbol, Report: report}

	fail := func(stage string, err error) (*Result, error) {
		report.Finalize()
		r.countRun("error")
		log.Error().Err(err).Str("stage", stage).Msg("pipeline run failed")
		return result, fmt.Errorf("symbol %s, stage %s: %w", symbol, stage, err)
	}

	schemaCfg := r.cfg.Schema
	if schemaCfg.DefaultSymbol == "" {
		schemaCfg.DefaultSymbol = symbol
	}

	parsed, err := NormalizeSchema(records, schemaCfg, report)
	if err != nil {
		return fail(domain.StageSchema, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(domain.StageSchema, err)
	}

	series, nominal, err := NormalizeTime(parsed, r.cfg.Time, report)
	if err != nil {
		return fail(domain.StageTime, err)
	}
	result.NominalInterval = nominal
	log.Debug().Dur("nominal_interval", nominal).Int("records", len(series)).Msg("time normalization complete")
	if err := ctx.Err(); err != nil {
		return fail(domain.StageTime, err)
	}

	series = Deduplicate(series, r.cfg.Dedupe, report)

	gaps := ClassifyGaps(series, nominal, r.cfg.Gaps, r.cal, report)
	if err := ctx.Err(); err != nil {
		return fail(domain.StageGaps, err)
	}

	series, err = Repair(series, gaps, nominal, r.cfg.Repair, report)
	if err != nil {
		return fail(domain.StageRepair, err)
	}
	result.Canonical = series

	ComputeOutlierStats(series, report)

	resampled, err := ResampleAll(series, r.cfg.Resample, report)
	if err != nil {
		// The fine-grained series survives a resample failure.
		report.Finalize()
		r.countRun("resample_error")
		log.Warn().Err(err).Msg("resample step failed, returning canonical series only")
		return result, fmt.Errorf("symbol %s, stage %s: %w", symbol, domain.StageResample, err)
	}
	result.Resampled = resampled

	report.Finalize()
	r.observe(result, time.Since(started))
	log.Info().
		Int("bars", len(series)).
		Int("synthetic", series.SyntheticCount()).
		Int64("duplicates_removed", report.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved)).
		Int64("gaps", report.Counter(domain.StageGaps, domain.CounterGapsTotal)).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline run complete")
	return result, nil
}

func (r *Runner) countRun(status string) {
	if r.metrics != nil {
		r.metrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	}
}

func (r *Runner) observe(res *Result, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	rep := res.Report
	r.metrics.PipelineRunsTotal.WithLabelValues("ok").Inc()
	r.metrics.PipelineDuration.WithLabelValues(res.Symbol).Observe(elapsed.Seconds())
	r.metrics.SeriesLength.Observe(float64(len(res.Canonical)))
	r.metrics.RecordsIngested.Add(float64(rep.Counter(domain.StageSchema, domain.CounterRecordsIn)))
	r.metrics.RecordsDropped.WithLabelValues(domain.StageSchema).
		Add(float64(rep.Counter(domain.StageSchema, domain.CounterDroppedRecords)))
	r.metrics.RecordsDropped.WithLabelValues(domain.StageTime).
		Add(float64(rep.Counter(domain.StageTime, domain.CounterDroppedRecords)))
	r.metrics.DuplicatesRemoved.Add(float64(rep.Counter(domain.StageDedupe, domain.CounterDuplicatesRemoved)))
	r.metrics.GapsDetected.WithLabelValues("expected").
		Add(float64(rep.Counter(domain.StageGaps, domain.CounterGapsExpected)))
	r.metrics.GapsDetected.WithLabelValues("unexpected").
		Add(float64(rep.Counter(domain.StageGaps, domain.CounterGapsUnexpected)))
	r.metrics.BarsSynthesized.Add(float64(rep.Counter(domain.StageRepair, domain.CounterBarsSynthesized)))
	r.metrics.UnrepairableGaps.Add(float64(rep.Counter(domain.StageRepair, domain.CounterUnrepairableGaps)))
	r.metrics.OutliersFlagged.Add(float64(rep.Counter(domain.StageReport, domain.CounterOutlierFlags)))
	for label, series := range res.Resampled {
		r.metrics.BucketsEmitted.WithLabelValues(label).Add(float64(len(series)))
	}
}

// Package orchestrator coordinates full pipeline executions: it fans raw
// per-symbol record batches out to a worker pool of engine runs and
// persists every cleaned series and quality report.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"market-etl-lab/internal/calendar"
	"market-etl-lab/internal/config"
	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/etl"
	"market-etl-lab/internal/observability"
	"market-etl-lab/internal/storage"
)

// Options for creating an Orchestrator.
type Options struct {
	// Required stores.
	BarStore    storage.BarStore
	ReportStore storage.ReportStore

	// Config supplies per-symbol engine settings and the worker count.
	Config *config.Config

	// Calendar consulted by gap classification; nil means always open.
	Calendar calendar.Calendar

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Orchestrator runs the pipeline for many symbols concurrently. Symbols
// are independent, so the only shared state is the stores.
type Orchestrator struct {
	bars    storage.BarStore
	reports storage.ReportStore
	cfg     *config.Config
	cal     calendar.Calendar
	log     zerolog.Logger
	metrics *observability.Metrics
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.BarStore == nil || opts.ReportStore == nil {
		return nil, fmt.Errorf("orchestrator: bar and report stores are required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	cal := opts.Calendar
	if cal == nil {
		cal = calendar.AlwaysOpen{}
	}
	return &Orchestrator{
		bars:    opts.BarStore,
		reports: opts.ReportStore,
		cfg:     opts.Config,
		cal:     cal,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// RunResult aggregates one orchestrated execution.
type RunResult struct {
	SymbolsProcessed int
	BarsStored       int
	ReportsStored    int
	Errors           []string
}

// symbolJob is one unit of work for the pool.
type symbolJob struct {
	symbol  string
	records []domain.RawRecord
}

// symbolOutcome is the per-symbol result collected from workers.
type symbolOutcome struct {
	symbol       string
	barsStored   int
	reportStored bool
	err          error
}

// Run executes the pipeline for every symbol in inputs using the
// configured worker count. Per-symbol failures are collected, not fatal;
// the error return covers only orchestration itself (context
// cancellation).
func (o *Orchestrator) Run(ctx context.Context, inputs map[string][]domain.RawRecord) (*RunResult, error) {
	result := &RunResult{}
	if len(inputs) == 0 {
		return result, nil
	}

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan symbolJob)
	outcomes := make(chan symbolOutcome, len(inputs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- o.runSymbol(ctx, job)
			}
		}()
	}

	// Deterministic submission order keeps logs readable.
	symbols := make([]string, 0, len(inputs))
	for symbol := range inputs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	submit := func() error {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case jobs <- symbolJob{symbol: symbol, records: inputs[symbol]}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	submitErr := make(chan error, 1)
	go func() { submitErr <- submit() }()

	wg.Wait()
	close(outcomes)

	for out := range outcomes {
		result.SymbolsProcessed++
		result.BarsStored += out.barsStored
		if out.reportStored {
			result.ReportsStored++
		}
		if out.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", out.symbol, out.err))
		}
	}

	if err := <-submitErr; err != nil {
		return result, err
	}
	o.log.Info().
		Int("symbols", result.SymbolsProcessed).
		Int("bars_stored", result.BarsStored).
		Int("errors", len(result.Errors)).
		Msg("orchestrated run complete")
	return result, nil
}

// runSymbol executes one engine run and persists its outputs.
func (o *Orchestrator) runSymbol(ctx context.Context, job symbolJob) symbolOutcome {
	out := symbolOutcome{symbol: job.symbol}

	engineCfg, err := o.cfg.EngineConfig(job.symbol)
	if err != nil {
		out.err = err
		return out
	}

	runner, err := etl.NewRunner(engineCfg, o.cal, o.log)
	if err != nil {
		out.err = err
		return out
	}
	if o.metrics != nil {
		runner = runner.WithMetrics(o.metrics)
	}

	res, runErr := runner.Run(ctx, job.symbol, job.records)
	if res == nil {
		out.err = runErr
		return out
	}
	if res.Canonical == nil {
		// The run aborted before producing a series; its report still
		// documents what went wrong.
		if res.Report != nil && res.Report.Finalized() {
			if err := o.reports.Insert(ctx, res.Report); err == nil {
				out.reportStored = true
			}
		}
		out.err = runErr
		return out
	}

	// Persist whatever the run produced, even on resample failure: the
	// canonical series and the report still carry value.
	if err := o.bars.ReplaceSeries(ctx, job.symbol, storage.TimeframeCanonical, res.Canonical); err != nil {
		out.err = fmt.Errorf("store canonical series: %w", err)
		return out
	}
	out.barsStored += len(res.Canonical)

	for label, series := range res.Resampled {
		if err := o.bars.ReplaceSeries(ctx, job.symbol, label, series); err != nil {
			out.err = fmt.Errorf("store %s series: %w", label, err)
			return out
		}
		out.barsStored += len(series)
	}

	if res.Report != nil && res.Report.Finalized() {
		if err := o.reports.Insert(ctx, res.Report); err != nil {
			out.err = fmt.Errorf("store quality report: %w", err)
			return out
		}
		out.reportStored = true
	}

	out.err = runErr
	return out
}

package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Pipeline stage names used as QualityReport keys.
// Every stage contributes at least a zero-count entry, so a missing key
// means the stage never ran.
const (
	StageSchema   = "schema"
	StageTime     = "time"
	StageDedupe   = "dedupe"
	StageGaps     = "gaps"
	StageRepair   = "repair"
	StageResample = "resample"
	StageReport   = "report"
)

// Counter names shared across stages.
const (
	CounterRecordsIn         = "records_in"
	CounterRecordsOut        = "records_out"
	CounterInvalidRecords    = "invalid_records"
	CounterDroppedRecords    = "records_dropped"
	CounterDuplicatesRemoved = "duplicates_removed"
	CounterGapsTotal         = "total_gaps_detected"
	CounterGapsExpected      = "expected_gaps"
	CounterGapsUnexpected    = "unexpected_gaps"
	CounterMissingBars       = "unexpected_missing_bars"
	CounterBarsSynthesized   = "bars_synthesized"
	CounterUnrepairableGaps  = "unrepairable_gaps"
	CounterOutlierFlags      = "outlier_flags"
	CounterBucketsEmitted    = "buckets_emitted"
	CounterVolumeDropped     = "volume_dropped"
)

// QualityReport accumulates per-stage diagnostics for one pipeline run.
// It is append-only while the run is in flight and immutable after
// Finalize. One instance per run; never shared across runs.
type QualityReport struct {
	RunID      string
	Symbol     string
	StartedAt  time.Time
	FinishedAt time.Time

	Stages map[string]map[string]int64
	Gaps   []*Gap
	Notes  []string

	finalized bool
}

// NewQualityReport creates an empty report for one symbol's run.
func NewQualityReport(symbol string) *QualityReport {
	return &QualityReport{
		RunID:     uuid.NewString(),
		Symbol:    symbol,
		StartedAt: time.Now().UTC(),
		Stages:    make(map[string]map[string]int64),
	}
}

// Touch registers a stage with a zero-count entry so omission is
// detectable even when the stage had nothing to count.
func (r *QualityReport) Touch(stage string) {
	r.mustMutable()
	if _, ok := r.Stages[stage]; !ok {
		r.Stages[stage] = make(map[string]int64)
	}
}

// Add increments a stage counter.
func (r *QualityReport) Add(stage, counter string, delta int64) {
	r.Touch(stage)
	r.Stages[stage][counter] += delta
}

// Counter returns the current value of a stage counter (0 if unset).
func (r *QualityReport) Counter(stage, counter string) int64 {
	if m, ok := r.Stages[stage]; ok {
		return m[counter]
	}
	return 0
}

// AddGap records a classified gap.
func (r *QualityReport) AddGap(g *Gap) {
	r.mustMutable()
	r.Gaps = append(r.Gaps, g)
}

// AddNote appends a human-readable remark (outlier heuristics etc).
func (r *QualityReport) AddNote(note string) {
	r.mustMutable()
	r.Notes = append(r.Notes, note)
}

// Finalize freezes the report. Further mutation panics: stages never
// touch a report owned by a completed run. A FinishedAt set earlier
// (reports rehydrated from storage) is preserved.
func (r *QualityReport) Finalize() {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	r.finalized = true
}

// Finalized reports whether the run has completed.
func (r *QualityReport) Finalized() bool { return r.finalized }

// StageNames returns the contributing stages in sorted order.
func (r *QualityReport) StageNames() []string {
	names := make([]string, 0, len(r.Stages))
	for name := range r.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *QualityReport) mustMutable() {
	if r.finalized {
		panic("domain: write to finalized QualityReport")
	}
}

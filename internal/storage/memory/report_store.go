package memory

import (
	"context"
	"sort"
	"sync"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.QualityReport // keyed by run_id
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{data: make(map[string]*domain.QualityReport)}
}

var _ storage.ReportStore = (*ReportStore)(nil)

// Insert persists a finalized report. Returns ErrDuplicateKey if the run
// ID exists.
func (s *ReportStore) Insert(_ context.Context, r *domain.QualityReport) error {
	if r == nil || r.RunID == "" || !r.Finalized() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RunID] = copyReport(r)
	return nil
}

// GetByRunID retrieves one report. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByRunID(_ context.Context, runID string) (*domain.QualityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyReport(r), nil
}

// ListBySymbol retrieves all reports for a symbol, newest first.
func (s *ReportStore) ListBySymbol(_ context.Context, symbol string) ([]*domain.QualityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QualityReport
	for _, r := range s.data {
		if r.Symbol == symbol {
			result = append(result, copyReport(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result, nil
}

// copyReport deep-copies a report so callers never share memory with the
// store.
func copyReport(r *domain.QualityReport) *domain.QualityReport {
	out := &domain.QualityReport{
		RunID:      r.RunID,
		Symbol:     r.Symbol,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stages:     make(map[string]map[string]int64, len(r.Stages)),
	}
	for stage, counters := range r.Stages {
		m := make(map[string]int64, len(counters))
		for name, v := range counters {
			m[name] = v
		}
		out.Stages[stage] = m
	}
	for _, g := range r.Gaps {
		gapCopy := *g
		out.Gaps = append(out.Gaps, &gapCopy)
	}
	out.Notes = append(out.Notes, r.Notes...)
	out.Finalize()
	return out
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

// ReportStore implements storage.ReportStore using PostgreSQL. Stage
// counters, gaps and notes are stored as JSONB so the report schema can
// grow without migrations.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new PostgreSQL-backed report store.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

var _ storage.ReportStore = (*ReportStore)(nil)

// gapRecord is the JSONB shape of one classified gap.
type gapRecord struct {
	Symbol      string    `json:"symbol"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	MissingBars int       `json:"missing_bars"`
	Expected    bool      `json:"expected"`
	Repaired    bool      `json:"repaired"`
}

// Insert persists a finalized report. Returns ErrDuplicateKey if the run
// ID exists.
func (s *ReportStore) Insert(ctx context.Context, r *domain.QualityReport) error {
	if r == nil || r.RunID == "" || r.Symbol == "" || !r.Finalized() {
		return storage.ErrInvalidInput
	}

	stages, err := json.Marshal(r.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	gaps, err := json.Marshal(toGapRecords(r.Gaps))
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	notes, err := json.Marshal(r.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}

	query := `
		INSERT INTO quality_reports (
			run_id, symbol, started_at, finished_at, stages, gaps, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.Symbol, r.StartedAt, r.FinishedAt, stages, gaps, notes,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert quality report: %w", err)
	}
	return nil
}

// GetByRunID retrieves one report. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByRunID(ctx context.Context, runID string) (*domain.QualityReport, error) {
	query := `
		SELECT run_id, symbol, started_at, finished_at, stages, gaps, notes
		FROM quality_reports
		WHERE run_id = $1
	`
	r, err := s.scanReport(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get quality report: %w", err)
	}
	return r, nil
}

// ListBySymbol retrieves all reports for a symbol, newest first.
func (s *ReportStore) ListBySymbol(ctx context.Context, symbol string) ([]*domain.QualityReport, error) {
	query := `
		SELECT run_id, symbol, started_at, finished_at, stages, gaps, notes
		FROM quality_reports
		WHERE symbol = $1
		ORDER BY started_at DESC
	`
	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("list quality reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.QualityReport
	for rows.Next() {
		r, err := s.scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quality report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quality reports: %w", err)
	}
	return reports, nil
}

// scanRow covers both pgx.Row and pgx.Rows.
type scanRow interface {
	Scan(dest ...any) error
}

func (s *ReportStore) scanReport(row scanRow) (*domain.QualityReport, error) {
	var (
		r          domain.QualityReport
		stages     []byte
		gaps       []byte
		notes      []byte
		startedAt  time.Time
		finishedAt time.Time
	)
	err := row.Scan(&r.RunID, &r.Symbol, &startedAt, &finishedAt, &stages, &gaps, &notes)
	if err != nil {
		return nil, err
	}
	r.StartedAt = startedAt.UTC()
	r.FinishedAt = finishedAt.UTC()

	if err := json.Unmarshal(stages, &r.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	var records []gapRecord
	if err := json.Unmarshal(gaps, &records); err != nil {
		return nil, fmt.Errorf("unmarshal gaps: %w", err)
	}
	r.Gaps = fromGapRecords(records)
	if err := json.Unmarshal(notes, &r.Notes); err != nil {
		return nil, fmt.Errorf("unmarshal notes: %w", err)
	}

	r.Finalize()
	return &r, nil
}

func toGapRecords(gaps []*domain.Gap) []gapRecord {
	records := make([]gapRecord, 0, len(gaps))
	for _, g := range gaps {
		records = append(records, gapRecord{
			Symbol:      g.Symbol,
			Start:       g.Start,
			End:         g.End,
			MissingBars: g.MissingBars,
			Expected:    g.Expected,
			Repaired:    g.Repaired,
		})
	}
	return records
}

func fromGapRecords(records []gapRecord) []*domain.Gap {
	var gaps []*domain.Gap
	for _, rec := range records {
		gaps = append(gaps, &domain.Gap{
			Symbol:      rec.Symbol,
			Start:       rec.Start.UTC(),
			End:         rec.End.UTC(),
			MissingBars: rec.MissingBars,
			Expected:    rec.Expected,
			Repaired:    rec.Repaired,
		})
	}
	return gaps
}

package storage

import (
	"context"
	"time"

	"market-etl-lab/internal/domain"
)

// Timeframe label under which the fine-grained cleaned series is stored.
// Resampled series use their rule label ("5m", "1h", ...).
const TimeframeCanonical = "canonical"

// BarStore provides access to cleaned bar series, keyed by
// (symbol, timeframe, timestamp).
type BarStore interface {
	// InsertBars adds a batch of bars under one timeframe. Returns
	// ErrDuplicateKey if any (symbol, timeframe, timestamp) exists,
	// including within the batch; nothing is written on failure.
	InsertBars(ctx context.Context, timeframe string, bars domain.Series) error

	// ReplaceSeries atomically replaces the stored series for one
	// (symbol, timeframe). Pipeline reruns are idempotent through this.
	ReplaceSeries(ctx context.Context, symbol, timeframe string, bars domain.Series) error

	// GetSeries retrieves the full series for a (symbol, timeframe),
	// ordered by timestamp ASC. Empty series is not an error.
	GetSeries(ctx context.Context, symbol, timeframe string) (domain.Series, error)

	// GetRange retrieves bars within [start, end] (inclusive), ordered
	// by timestamp ASC.
	GetRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (domain.Series, error)

	// Symbols lists the distinct symbols present, in lexical order.
	Symbols(ctx context.Context) ([]string, error)
}

// ReportStore provides access to per-run quality reports.
type ReportStore interface {
	// Insert persists a finalized report. Returns ErrDuplicateKey if the
	// run ID exists and ErrInvalidInput for nil or unfinalized reports.
	Insert(ctx context.Context, r *domain.QualityReport) error

	// GetByRunID retrieves one report. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.QualityReport, error)

	// ListBySymbol retrieves all reports for a symbol, newest first.
	ListBySymbol(ctx context.Context, symbol string) ([]*domain.QualityReport, error)
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse. Bars live in a
// ReplacingMergeTree keyed by (symbol, timeframe, ts); reads go through
// FINAL so replaced rows never surface.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new ClickHouse-backed bar store.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

var _ storage.BarStore = (*BarStore)(nil)

// InsertBars adds a batch of bars under one timeframe. Returns
// ErrDuplicateKey if any (symbol, timeframe, timestamp) exists,
// including within the batch.
func (s *BarStore) InsertBars(ctx context.Context, timeframe string, bars domain.Series) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Symbol == "" || timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Symbol, b.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree enforces no uniqueness at insert time, so check first.
	for _, b := range bars {
		exists, err := s.exists(ctx, b.Symbol, timeframe, b.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	return s.sendBatch(ctx, timeframe, bars)
}

// ReplaceSeries atomically replaces the stored series for one
// (symbol, timeframe).
func (s *BarStore) ReplaceSeries(ctx context.Context, symbol, timeframe string, bars domain.Series) error {
	if symbol == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}
	for _, b := range bars {
		if b == nil || b.Symbol != symbol {
			return storage.ErrInvalidInput
		}
	}

	err := s.conn.Exec(ctx, `DELETE FROM bars WHERE symbol = ? AND timeframe = ?`, symbol, timeframe)
	if err != nil {
		return fmt.Errorf("delete series: %w", err)
	}
	if len(bars) == 0 {
		return nil
	}
	return s.sendBatch(ctx, timeframe, bars)
}

// GetSeries retrieves the full series for a (symbol, timeframe), ordered
// by timestamp ASC.
func (s *BarStore) GetSeries(ctx context.Context, symbol, timeframe string) (domain.Series, error) {
	query := `
		SELECT symbol, ts, open, high, low, close, volume, synthetic
		FROM bars FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts ASC
	`
	rows, err := s.conn.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by
// timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol, timeframe string, start, end time.Time) (domain.Series, error) {
	query := `
		SELECT symbol, ts, open, high, low, close, volume, synthetic
		FROM bars FINAL
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := s.conn.Query(ctx, query, symbol, timeframe, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Symbols lists the distinct symbols present, in lexical order.
func (s *BarStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}
	return symbols, nil
}

func (s *BarStore) sendBatch(ctx context.Context, timeframe string, bars domain.Series) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			symbol, timeframe, ts, open, high, low, close, volume, synthetic
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		synthetic := uint8(0)
		if b.Synthetic {
			synthetic = 1
		}
		err = batch.Append(
			b.Symbol, timeframe, b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close,
			b.Volume, synthetic,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *BarStore) exists(ctx context.Context, symbol, timeframe string, ts time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM bars FINAL
		WHERE symbol = ? AND timeframe = ? AND ts = ?
	`
	var count uint64
	if err := s.conn.QueryRow(ctx, query, symbol, timeframe, ts.UTC()).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanBars(rows driver.Rows) (domain.Series, error) {
	var bars domain.Series

	for rows.Next() {
		var b domain.Bar
		var ts time.Time
		var synthetic uint8

		err := rows.Scan(
			&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &synthetic,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		b.Timestamp = ts.UTC()
		b.Synthetic = synthetic == 1
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}
	return bars, nil
}

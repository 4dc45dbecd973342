package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bar // keyed by (symbol, timeframe, timestamp)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{data: make(map[string]*domain.Bar)}
}

var _ storage.BarStore = (*BarStore)(nil)

func barKey(symbol, timeframe string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", symbol, timeframe, ts.UnixMilli())
}

// InsertBars adds a batch of bars under one timeframe. Returns
// ErrDuplicateKey if any key exists; nothing is written on failure.
func (s *BarStore) InsertBars(_ context.Context, timeframe string, bars domain.Series) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Symbol == "" || timeframe == "" {
			return storage.ErrInvalidInput
		}
		key := barKey(b.Symbol, timeframe, b.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, b := range bars {
		s.data[barKey(b.Symbol, timeframe, b.Timestamp)] = b.Clone()
	}
	return nil
}

// ReplaceSeries atomically replaces the stored series for one
// (symbol, timeframe).
func (s *BarStore) ReplaceSeries(_ context.Context, symbol, timeframe string, bars domain.Series) error {
	if symbol == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}
	for _, b := range bars {
		if b == nil || b.Symbol != symbol {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := symbol + "|" + timeframe + "|"
	for key := range s.data {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.data, key)
		}
	}
	for _, b := range bars {
		s.data[barKey(symbol, timeframe, b.Timestamp)] = b.Clone()
	}
	return nil
}

// GetSeries retrieves the full series for a (symbol, timeframe), ordered
// by timestamp ASC.
func (s *BarStore) GetSeries(_ context.Context, symbol, timeframe string) (domain.Series, error) {
	return s.collect(symbol, timeframe, func(*domain.Bar) bool { return true }), nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by
// timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, symbol, timeframe string, start, end time.Time) (domain.Series, error) {
	return s.collect(symbol, timeframe, func(b *domain.Bar) bool {
		return !b.Timestamp.Before(start) && !b.Timestamp.After(end)
	}), nil
}

// Symbols lists the distinct symbols present, in lexical order.
func (s *BarStore) Symbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, b := range s.data {
		seen[b.Symbol] = true
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *BarStore) collect(symbol, timeframe string, keep func(*domain.Bar) bool) domain.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := symbol + "|" + timeframe + "|"
	var result domain.Series
	for key, b := range s.data {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && keep(b) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

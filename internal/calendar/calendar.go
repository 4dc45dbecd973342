// Package calendar models trading sessions as a small capability the gap
// classifier consumes. Implementations decide what "market open" means;
// the engine only asks whether an instant trades and where the session
// bounds of a day are.
package calendar

import "time"

// Calendar describes valid trading windows for one market.
type Calendar interface {
	// IsTrading reports whether the market trades at the given instant.
	IsTrading(t time.Time) bool

	// SessionBounds returns the open/close instants (UTC) of the session
	// covering the given day. ok is false on non-trading days.
	SessionBounds(day time.Time) (open, close time.Time, ok bool)
}

// AlwaysOpen is the 24/7 calendar (crypto markets): every instant trades
// and every day is a full session.
type AlwaysOpen struct{}

// IsTrading always returns true.
func (AlwaysOpen) IsTrading(time.Time) bool { return true }

// SessionBounds returns midnight-to-midnight UTC for the given day.
func (AlwaysOpen) SessionBounds(day time.Time) (time.Time, time.Time, bool) {
	d := day.UTC()
	open := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return open, open.Add(24 * time.Hour), true
}

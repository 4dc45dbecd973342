package calendar

import (
	"fmt"
	"time"
)

// SessionCalendar is a single-session weekday calendar: one open/close
// window per trading day in the exchange's local timezone, closed on
// configured weekend days and listed holidays.
type SessionCalendar struct {
	loc      *time.Location
	open     time.Duration // offset from local midnight
	close    time.Duration // offset from local midnight, > open
	weekend  map[time.Weekday]bool
	holidays map[string]bool // local dates, "2006-01-02"
}

// SessionOption customizes a SessionCalendar.
type SessionOption func(*SessionCalendar)

// WithWeekend overrides the default Saturday/Sunday weekend.
func WithWeekend(days ...time.Weekday) SessionOption {
	return func(c *SessionCalendar) {
		c.weekend = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			c.weekend[d] = true
		}
	}
}

// WithHolidays marks full non-trading days, given as local dates.
func WithHolidays(days ...time.Time) SessionOption {
	return func(c *SessionCalendar) {
		for _, d := range days {
			c.holidays[d.In(c.loc).Format("2006-01-02")] = true
		}
	}
}

// NewSession creates a weekday session calendar. open and close are
// offsets from local midnight (e.g. 9h30m, 16h).
func NewSession(loc *time.Location, open, close time.Duration, opts ...SessionOption) (*SessionCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	if open < 0 || close <= open || close > 24*time.Hour {
		return nil, fmt.Errorf("calendar: invalid session window [%v, %v)", open, close)
	}
	c := &SessionCalendar{
		loc:   loc,
		open:  open,
		close: close,
		weekend: map[time.Weekday]bool{
			time.Saturday: true,
			time.Sunday:   true,
		},
		holidays: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IsTrading reports whether t falls inside the local session window on a
// trading day. The window is left-closed: the open instant trades, the
// close instant does not.
func (c *SessionCalendar) IsTrading(t time.Time) bool {
	local := t.In(c.loc)
	if !c.tradingDay(local) {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	offset := local.Sub(midnight)
	return offset >= c.open && offset < c.close
}

// SessionBounds returns the UTC open/close instants of the session on the
// local date containing day. ok is false on weekends and holidays.
func (c *SessionCalendar) SessionBounds(day time.Time) (time.Time, time.Time, bool) {
	local := day.In(c.loc)
	if !c.tradingDay(local) {
		return time.Time{}, time.Time{}, false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return midnight.Add(c.open).UTC(), midnight.Add(c.close).UTC(), true
}

func (c *SessionCalendar) tradingDay(local time.Time) bool {
	if c.weekend[local.Weekday()] {
		return false
	}
	return !c.holidays[local.Format("2006-01-02")]
}

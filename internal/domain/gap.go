package domain

import "time"

// Gap is a run of missing grid instants between two real bars.
// Start and End are inclusive bounds of the missing instants, already
// clipped to session boundaries by the classifier: a raw gap straddling a
// session close splits into one expected and one unexpected Gap.
type Gap struct {
	Symbol      string
	Start       time.Time // first missing grid instant (UTC)
	End         time.Time // last missing grid instant (UTC)
	MissingBars int       // gap duration / nominal interval, rounded down
	Expected    bool      // fully inside non-trading time per the calendar
	Repaired    bool      // set by the repair engine, never on expected gaps
}

// Duration returns the closed-interval span of the gap in grid terms:
// End - Start plus one nominal interval is the wall-clock hole, but the
// classifier stores the per-gap bar estimate in MissingBars, so Duration
// only reports the distance between the missing endpoints.
func (g *Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

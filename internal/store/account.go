package store

import "time"

// Horizons matches spec.md §3's "5 minutes, 1 hour, 24 hours" windows.
var Horizons = []time.Duration{5 * time.Minute, time.Hour, 24 * time.Hour}

const (
	interArrivalRingCap = 1024 // spec.md §4.1
	thirtyDayHorizon     = 30 * 24 * time.Hour
)

// accountState is the per-account record held inside a shard. All
// mutation happens under the owning shard's lock; reads via Snapshot take
// a brief lock to copy out what's needed and never hold it across worker
// execution.
type accountState struct {
	accountID string

	windows map[time.Duration]*Window

	lastTimestamp  time.Time
	interArrival   *durationRing
	thirtyDayCount int64
	thirtyDayStart time.Time

	lastActivity time.Time
}

func newAccountState(accountID string, now time.Time) *accountState {
	a := &accountState{
		accountID:      accountID,
		windows:        make(map[time.Duration]*Window, len(Horizons)),
		interArrival:   newDurationRing(interArrivalRingCap),
		thirtyDayStart: now,
		lastActivity:   now,
	}
	for _, h := range Horizons {
		a.windows[h] = newWindow(h)
	}
	return a
}

// ingest appends rec to every horizon window and updates the account's
// monotonicity/inter-arrival bookkeeping. Caller (Store.Ingest) already
// holds the shard lock and has verified ts is non-decreasing.
func (a *accountState) ingest(ts time.Time, rec promptRecord) {
	if !a.lastTimestamp.IsZero() {
		delta := ts.Sub(a.lastTimestamp).Milliseconds()
		if delta < 0 {
			delta = 0
		}
		a.interArrival.Push(delta)
	}
	a.lastTimestamp = ts
	a.lastActivity = ts

	if ts.Sub(a.thirtyDayStart) > thirtyDayHorizon {
		a.thirtyDayStart = ts
		a.thirtyDayCount = 0
	}
	a.thirtyDayCount++

	for _, w := range a.windows {
		w.append(rec)
	}
}

// window returns the Window for the given horizon, or nil if horizon is
// not one of the three tracked (24h is the longest horizon holding
// raw records; 30d is a coarse counter only, per spec.md §3).
func (a *accountState) window(horizon time.Duration) *Window {
	return a.windows[horizon]
}

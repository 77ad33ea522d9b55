package entitlements

import (
	"math"
	"time"
)

const Day = 24 * time.Hour

// Window is the derived progress of a time-bounded grant at one instant.
type Window struct {
	Total     time.Duration
	Elapsed   time.Duration
	Remaining time.Duration
	Percent   int
	DaysLeft  int
	Expired   bool
}

// Compute derives window progress for [start, end] evaluated at now.
// It never fails: an end before start collapses to an empty window and
// all durations are clamped to be non-negative.
func Compute(start, end, now time.Time) Window {
	w := Window{Expired: !now.Before(end)}

	if end.After(start) {
		w.Total = end.Sub(start)
	}

	w.Elapsed = now.Sub(start)
	if w.Elapsed < 0 {
		w.Elapsed = 0
	}
	if w.Elapsed > w.Total {
		w.Elapsed = w.Total
	}

	if end.After(now) {
		w.Remaining = end.Sub(now)
	}

	if w.Total > 0 {
		w.Percent = int(math.Round(float64(w.Elapsed) / float64(w.Total) * 100))
		// strictly inside the window never reads as 0% or 100%
		if w.Elapsed > 0 && w.Percent == 0 {
			w.Percent = 1
		}
		if w.Elapsed < w.Total && w.Percent == 100 {
			w.Percent = 99
		}
	}

	w.DaysLeft = int((w.Remaining + Day - 1) / Day)
	return w
}

func (w Window) TotalMs() int64     { return w.Total.Milliseconds() }
func (w Window) ElapsedMs() int64   { return w.Elapsed.Milliseconds() }
func (w Window) RemainingMs() int64 { return w.Remaining.Milliseconds() }

package lms

import "sync"

// RateSnapshot is a consistent view of a RateTracker.
type RateSnapshot struct {
	Count    int
	SumRates float64
	Average  float64
}

// RateTracker accumulates instantaneous scan rates. The average is the mean
// of 1/dt over every scan, not scans over elapsed time.
type RateTracker struct {
	mu   sync.Mutex
	snap RateSnapshot
}

// Add records one scan that took dt seconds. Non-positive durations count
// the scan without contributing a rate.
func (r *RateTracker) Add(dt float64) RateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Count++
	if dt > 0 {
		r.snap.SumRates += 1 / dt
	}
	r.snap.Average = r.snap.SumRates / float64(r.snap.Count)
	return r.snap
}

// Snapshot returns the current counters.
func (r *RateTracker) Snapshot() RateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Average returns the current mean rate in Hz.
func (r *RateTracker) Average() float64 {
	return r.Snapshot().Average
}

package progress

import "time"

// Sample is one throughput reading emitted per tick.
type Sample struct {
	Time        time.Time
	Total       int64
	BytesPerSec float64
}

type point struct {
	t     time.Time
	total int64
}

// Estimator computes a smoothed bytes/second figure from periodic
// observations of the shared counter. It keeps a bounded history of
// (time, cumulative bytes) points and averages over the trailing
// window; before the window fills, the average runs from the start of
// the transfer so early readings are not artificially low.
//
// The estimator owns its history exclusively and is not safe for
// concurrent use.
type Estimator struct {
	window  time.Duration
	history []point
}

func NewEstimator(window time.Duration) *Estimator {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Estimator{window: window}
}

// Start seeds the history with the start of the transfer so the first
// ticks average from zero bytes at t0.
func (e *Estimator) Start(t0 time.Time) {
	e.history = e.history[:0]
	e.history = append(e.history, point{t: t0})
}

// Observe records the counter total at time now and returns the
// average speed over the retained history. A zero-duration span
// yields a zero speed, never an error.
func (e *Estimator) Observe(now time.Time, total int64) Sample {
	e.history = append(e.history, point{t: now, total: total})
	e.evict(now)

	oldest := e.history[0]
	newest := e.history[len(e.history)-1]
	elapsed := newest.t.Sub(oldest.t).Seconds()
	sample := Sample{Time: now, Total: total}
	if elapsed > 0 {
		sample.BytesPerSec = float64(newest.total-oldest.total) / elapsed
	}
	return sample
}

// evict drops points older than the window, always retaining the two
// boundary points needed for a reading.
func (e *Estimator) evict(now time.Time) {
	cutoff := now.Add(-e.window)
	idx := 0
	for idx < len(e.history)-1 && e.history[idx].t.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		e.history = e.history[idx:]
	}
}

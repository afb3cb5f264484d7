package kafkax

import "sync/atomic"

// watermarkState tracks aggregate raw-queue occupancy across every worker
// ring and drives the backpressure pause/resume decision (C part of the
// design). All fields are process-wide atomics; see spec.md §5 for the
// exact ordering discipline each field is written under.
type watermarkState struct {
	totalRaw        atomic.Int64
	paused          atomic.Bool
	resumeRequested atomic.Bool

	high int64
	low  int64
}

func newWatermarkState(rawQueueSize int, highRatio, lowRatio float64) *watermarkState {
	return &watermarkState{
		high: int64(float64(rawQueueSize) * highRatio),
		low:  int64(float64(rawQueueSize) * lowRatio),
	}
}

func (w *watermarkState) incr() {
	w.totalRaw.Add(1)
}

func (w *watermarkState) decr() {
	w.totalRaw.Add(-1)
}

func (w *watermarkState) atOrAboveHigh() bool {
	return w.totalRaw.Load() >= w.high
}

func (w *watermarkState) atOrBelowLow() bool {
	return w.totalRaw.Load() <= w.low
}

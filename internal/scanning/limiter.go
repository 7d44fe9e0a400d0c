package scanning

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anstrom/bannerscan/internal/metrics"
)

// ConnLimiter caps the number of probes holding a socket at once.
type ConnLimiter interface {
	// Acquire blocks until a slot is available or the context is done.
	Acquire(ctx context.Context) error

	// Release returns a slot taken by Acquire.
	Release()

	// Active returns the number of slots currently held.
	Active() int

	// Capacity returns the maximum number of concurrent slots.
	Capacity() int
}

// WeightedLimiter implements ConnLimiter on a weighted semaphore and mirrors
// the number of held slots into a metrics recorder.
type WeightedLimiter struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
	recorder metrics.Recorder
}

// NewWeightedLimiter creates a limiter with the given capacity (minimum 1).
func NewWeightedLimiter(capacity int, recorder metrics.Recorder) *WeightedLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &WeightedLimiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		recorder: recorder,
	}
}

// Acquire takes one slot.
func (l *WeightedLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.active.Add(1)
	l.recorder.ProbeStarted()
	return nil
}

// Release returns one slot.
func (l *WeightedLimiter) Release() {
	l.active.Add(-1)
	l.recorder.ProbeFinished()
	l.sem.Release(1)
}

// Active returns the number of held slots.
func (l *WeightedLimiter) Active() int {
	return int(l.active.Load())
}

// Capacity returns the configured capacity.
func (l *WeightedLimiter) Capacity() int {
	return l.capacity
}

type nopRecorder struct{}

func (nopRecorder) ObserveProbe(string, time.Duration) {}
func (nopRecorder) ProbeStarted()                      {}
func (nopRecorder) ProbeFinished()                     {}

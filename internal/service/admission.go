package service

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/onnwee/thunderindex/internal/metrics"
)

// Admission is the counting admission gate of §4.6 and §5: it bounds
// concurrent in-flight requests to a configured maximum. Acquisition is
// non-blocking — TryAcquire either succeeds immediately or the caller is
// rejected with ErrResourceExhausted. The in-flight counter increments on
// admission and is guaranteed to decrement on every exit path via the
// returned release function.
type Admission struct {
	sem      *semaphore.Weighted
	metrics  *metrics.Metrics
	inFlight atomic.Int64
}

func NewAdmission(maxConcurrent int64, m *metrics.Metrics) *Admission {
	return &Admission{sem: semaphore.NewWeighted(maxConcurrent), metrics: m}
}

// TryAcquire attempts to admit one request. ok is false if the configured
// concurrency cap is already saturated; callers must not call release in
// that case. When ok is true, release must be called exactly once on every
// exit path (including panic, via defer) to keep the gate's counters
// accurate.
func (a *Admission) TryAcquire(ctx context.Context) (release func(), ok bool) {
	if !a.sem.TryAcquire(1) {
		if a.metrics != nil {
			a.metrics.IncAdmissionRejected()
		}
		return nil, false
	}
	n := a.inFlight.Add(1)
	if a.metrics != nil {
		a.metrics.SetAdmissionInFlight(int(n))
	}
	return func() {
		n := a.inFlight.Add(-1)
		if a.metrics != nil {
			a.metrics.SetAdmissionInFlight(int(n))
		}
		a.sem.Release(1)
	}, true
}

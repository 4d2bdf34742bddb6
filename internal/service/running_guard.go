package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// jobLocks — per-job single-flight guard
// ─────────────────────────────────────────────────────────────

// jobLocks serializes runs per job ID. Acquire fails instead of
// blocking when the job is mid-run, so overlapping triggers (a cron
// tick landing during a manual run, say) collapse into the run
// already in flight.
type jobLocks struct {
	mu      sync.Mutex
	active  map[string]struct{}
	drained chan struct{} // open while any run is active
}

// Acquire marks jobID as running. Returns false if it already is.
func (l *jobLocks) Acquire(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		l.active = make(map[string]struct{})
	}
	if _, busy := l.active[jobID]; busy {
		return false
	}
	if len(l.active) == 0 {
		l.drained = make(chan struct{})
	}
	l.active[jobID] = struct{}{}
	return true
}

// Release clears the running mark. Call only after a successful Acquire.
func (l *jobLocks) Release(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, jobID)
	if len(l.active) == 0 && l.drained != nil {
		close(l.drained)
		l.drained = nil
	}
}

// Drain blocks until every in-flight run releases or ctx expires.
func (l *jobLocks) Drain(ctx context.Context) {
	l.mu.Lock()
	ch := l.drained
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

package service

import (
	"context"
	"testing"
	"time"
)

func TestJobLocksSingleFlight(t *testing.T) {
	var l jobLocks

	if !l.Acquire("job-1") {
		t.Fatal("first acquire should succeed")
	}
	if l.Acquire("job-1") {
		t.Fatal("acquire while running should fail")
	}
	if !l.Acquire("job-2") {
		t.Fatal("a different job should not be blocked")
	}

	l.Release("job-1")
	if !l.Acquire("job-1") {
		t.Fatal("acquire after release should succeed")
	}
	l.Release("job-1")
	l.Release("job-2")
}

func TestJobLocksDrain(t *testing.T) {
	var l jobLocks

	// Nothing running: Drain returns immediately.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Drain(ctx)

	if !l.Acquire("job-a") {
		t.Fatal("acquire failed")
	}

	done := make(chan struct{})
	go func() {
		l.Drain(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Drain returned while a job was still running")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release("job-a")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after the last release")
	}
}

func TestJobLocksDrainHonorsContext(t *testing.T) {
	var l jobLocks
	if !l.Acquire("stuck") {
		t.Fatal("acquire failed")
	}
	defer l.Release("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	l.Drain(ctx)
	if time.Since(start) > time.Second {
		t.Fatal("Drain ignored context cancellation")
	}
}

func TestMockEmitter(t *testing.T) {
	m := &MockEmitter{}
	ctx := context.Background()

	if m.Last() != "" {
		t.Errorf("empty emitter Last() = %q", m.Last())
	}

	m.Emit(ctx, "sync:job-completed", map[string]string{"jobId": "x"})
	m.Emit(ctx, "sync:job-failed", nil)

	if len(m.Events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(m.Events))
	}
	if m.Events[0].Event != "sync:job-completed" {
		t.Errorf("first event = %q", m.Events[0].Event)
	}
	if m.Last() != "sync:job-failed" {
		t.Errorf("Last() = %q", m.Last())
	}
}

package service

import (
	"context"
	"sync"
)

// EventEmitter carries job lifecycle events out of the service layer.
// The CLI backs it with a logger; tests use MockEmitter. Keeping it an
// interface means the service never knows where events end up.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// EmittedEvent is one recorded emission.
type EmittedEvent struct {
	Event string
	Data  any
}

// MockEmitter records every emission for assertions. Safe for
// concurrent use since watcher goroutines may emit during a test.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Last returns the most recent event name, or "" if nothing was emitted.
func (m *MockEmitter) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Events) == 0 {
		return ""
	}
	return m.Events[len(m.Events)-1].Event
}

package audit

import (
	"context"
	"sync"
)

// MemorySink keeps events in process. Used by tests and the HTTP server's
// recent-decisions view.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemorySink) Query(_ context.Context, correlationID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemorySink) List(_ context.Context, f Filter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return tail(out, f.Limit), nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

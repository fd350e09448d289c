// Package audit records the append-only trail of every pipeline run. Writes
// are best-effort: a failing sink is logged and never blocks a decision.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSinkClosed is returned by writes after Close.
	ErrSinkClosed = errors.New("audit sink closed")
	// ErrDuplicateEvent is returned when an event id was already stored.
	ErrDuplicateEvent = errors.New("audit event already recorded")
)

// #region event
// Type names a pipeline step.
type Type string

const (
	TypeRequestReceived    Type = "request_received"
	TypeRetrievalPerformed Type = "retrieval_performed"
	TypeRulesApplied       Type = "rules_applied"
	TypeScoreComputed      Type = "score_computed"
	TypeFallbackInvoked    Type = "fallback_invoked"
	TypeDecisionFinal      Type = "decision_final"
	TypePipelineDegraded   Type = "pipeline_degraded"
)

// Event is one self-contained audit line.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	Type          Type           `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a fresh id and the current UTC time.
func NewEvent(correlationID string, typ Type, data map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Type:          typ,
		Data:          data,
	}
}

// #endregion event

// #region sink
// Sink stores events. Implementations are safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, e Event) error
	Close() error
}

// Reader is implemented by sinks that can be queried back.
type Reader interface {
	// Query returns the events of one pipeline run in append order.
	Query(ctx context.Context, correlationID string) ([]Event, error)
	// List returns stored events matching f in append order.
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Filter narrows List. Zero values match everything; Limit keeps the most
// recent events.
type Filter struct {
	Type  Type
	Since time.Time
	Limit int
}

func (f Filter) match(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// tail keeps the last limit events.
func tail(events []Event, limit int) []Event {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}

// #endregion sink

package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// #region helpers
func sampleEvents(correlationID string) []Event {
	return []Event{
		NewEvent(correlationID, TypeRequestReceived, map[string]any{"category": "cancelamento"}),
		NewEvent(correlationID, TypeRulesApplied, map[string]any{"rule_id": "CANCELAMENTO_C1"}),
		NewEvent(correlationID, TypeDecisionFinal, map[string]any{"verdict": "APPROVE", "confidence": 0.98}),
	}
}

// exerciseSink runs the shared sink contract.
func exerciseSink(t *testing.T, s interface {
	Sink
	Reader
}) {
	t.Helper()
	ctx := context.Background()
	for _, e := range append(sampleEvents("run-a"), sampleEvents("run-b")...) {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Query(ctx, "run-a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events for run-a, got %d", len(got))
	}
	if got[0].Type != TypeRequestReceived || got[2].Type != TypeDecisionFinal {
		t.Errorf("events out of append order: %v, %v", got[0].Type, got[2].Type)
	}
	if got[2].Data["verdict"] != "APPROVE" || got[2].Data["confidence"] != 0.98 {
		t.Errorf("data not preserved: %v", got[2].Data)
	}
	if got[0].Timestamp.IsZero() || got[0].ID == "" {
		t.Errorf("missing id or timestamp: %+v", got[0])
	}

	finals, err := s.List(ctx, Filter{Type: TypeDecisionFinal})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(finals) != 2 || finals[1].CorrelationID != "run-b" {
		t.Errorf("unexpected decision list %+v", finals)
	}
	last, _ := s.List(ctx, Filter{Limit: 1})
	if len(last) != 1 || last[0].CorrelationID != "run-b" || last[0].Type != TypeDecisionFinal {
		t.Errorf("limit should keep the most recent event, got %+v", last)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Append(ctx, NewEvent("run-c", TypeRequestReceived, nil)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed after close, got %v", err)
	}
}

// failingSink always errors.
type failingSink struct{ closed bool }

func (f *failingSink) Append(context.Context, Event) error { return errors.New("disk full") }
func (f *failingSink) Close() error                        { f.closed = true; return nil }

// #endregion helpers

// #region sink-tests
func TestMemorySink(t *testing.T) {
	exerciseSink(t, NewMemorySink())
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	s, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseSink(t, s)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"correlation_id":"run-a"`) || !strings.Contains(lines[0], `"timestamp"`) {
		t.Errorf("line is not self-contained: %s", lines[0])
	}
}

func TestJSONLSink_EmptyPath(t *testing.T) {
	if _, err := NewJSONLSink(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReadJSONL_SkipsGarbage(t *testing.T) {
	in := `{"id":"1","correlation_id":"x","type":"request_received","timestamp":"2026-01-01T00:00:00Z"}
not json

{"id":"2","correlation_id":"x","type":"decision_final","timestamp":"2026-01-01T00:00:01Z"}
`
	events, err := ReadJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || events[1].Type != TypeDecisionFinal {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSQLiteSink(t *testing.T) {
	s, err := NewSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseSink(t, s)
}

func TestSQLiteSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := NewEvent("run", TypeRequestReceived, nil)
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Close()

	// reopening keeps the table and rows
	s, err = NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Query(context.Background(), "run")
	if err != nil || len(got) != 1 || got[0].Data != nil {
		t.Fatalf("expected one event without data, got %+v, %v", got, err)
	}
}

func TestSQLiteSink_DuplicateID(t *testing.T) {
	s, err := NewSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	e := NewEvent("run", TypeRequestReceived, nil)
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(context.Background(), e); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestSQLiteSink_ListSince(t *testing.T) {
	s, err := NewSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	old := NewEvent("old", TypeDecisionFinal, nil)
	old.Timestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := NewEvent("new", TypeDecisionFinal, nil)
	s.Append(context.Background(), old)
	s.Append(context.Background(), fresh)

	got, err := s.List(context.Background(), Filter{Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].CorrelationID != "new" {
		t.Fatalf("expected only the fresh event, got %+v", got)
	}
}

func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("REFUND_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("REFUND_TEST_PG_DSN not set")
	}
	s, err := NewPostgresSink(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.DB().Exec(`DELETE FROM audit_events WHERE correlation_id IN ('run-a', 'run-b', 'run-c')`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	exerciseSink(t, s)
}

func TestDialectBind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	if got := postgresDialect.bind(q); got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("postgres bind = %q", got)
	}
	if got := sqliteDialect.bind(q); got != q {
		t.Errorf("sqlite bind changed the query: %q", got)
	}
}

// #endregion sink-tests

// #region recorder-tests
func TestRecorder_FanOutAndFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	mem := NewMemorySink()
	bad := &failingSink{}
	r := NewRecorder(time.Second, logger, bad, mem)

	if n := r.Append(context.Background(), NewEvent("run", TypeDecisionFinal, nil)); n != 1 {
		t.Fatalf("expected 1 sink to accept, got %d", n)
	}
	if got, _ := mem.Query(context.Background(), "run"); len(got) != 1 {
		t.Errorf("healthy sink missed the event")
	}
	out := logs.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "disk full") || !strings.Contains(out, "component=audit") {
		t.Errorf("expected an ERROR log for the failing sink, got %q", out)
	}
	if r.Reader() != mem {
		t.Error("expected the memory sink as reader")
	}
	if err := r.Close(); err != nil || !bad.closed {
		t.Errorf("close: %v, closed=%v", err, bad.closed)
	}
}

func TestRecorder_NilIsNoOp(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), "run", TypeRequestReceived, nil)
	if r.Reader() != nil || r.Close() != nil {
		t.Fatal("nil recorder should do nothing")
	}
}

func TestRecorder_CancelledRequestStillWrites(t *testing.T) {
	mem := NewMemorySink()
	r := NewRecorder(time.Second, slog.New(slog.DiscardHandler), mem)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, "run", TypeDecisionFinal, nil)
	if got, _ := mem.Query(context.Background(), "run"); len(got) != 1 {
		t.Fatal("expected the event despite the cancelled request context")
	}
}

func TestOpen_SkipsBrokenSinks(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, []byte("x"), 0o644)

	r := Open(context.Background(), Config{
		JSONLPath:  filepath.Join(blocker, "audit.jsonl"),
		SQLitePath: filepath.Join(dir, "audit.db"),
		Timeout:    time.Second,
	}, slog.New(slog.DiscardHandler))
	defer r.Close()
	if len(r.sinks) != 1 {
		t.Fatalf("expected only the sqlite sink, got %d", len(r.sinks))
	}
	if _, ok := r.Reader().(*SQLSink); !ok {
		t.Errorf("expected sqlite reader, got %T", r.Reader())
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

// #endregion recorder-tests

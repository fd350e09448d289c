package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// #region jsonl
// JSONLSink appends one JSON object per line to a file. Queries scan the
// whole file.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLSink creates or opens path for appending, creating parent
// directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl sink: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl sink: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl sink: %w", err)
	}
	return &JSONLSink{path: path, f: f}, nil
}

func (s *JSONLSink) Append(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrSinkClosed
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func (s *JSONLSink) Query(ctx context.Context, correlationID string) ([]Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *JSONLSink) List(_ context.Context, f Filter) ([]Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return tail(out, f.Limit), nil
}

func (s *JSONLSink) readAll() ([]Event, error) {
	s.mu.Lock()
	if s.f != nil {
		_ = s.f.Sync()
	}
	s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadJSONL(f)
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadJSONL decodes an audit file. Lines that do not decode are skipped.
func ReadJSONL(r io.Reader) ([]Event, error) {
	var out []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read audit file: %w", err)
	}
	return out, nil
}

// #endregion jsonl

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// #region config
// Config selects the sinks. Every non-empty destination is written.
type Config struct {
	JSONLPath   string        `yaml:"jsonl_path"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout"` // per write
}

func DefaultConfig() Config {
	return Config{JSONLPath: "data/audit.jsonl", Timeout: 2 * time.Second}
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("audit: timeout must be > 0, got %s", c.Timeout)
	}
	return nil
}

// #endregion config

// #region recorder
// Recorder fans events out to its sinks. Failures are logged at ERROR and
// swallowed; the caller's decision never waits on a broken sink longer than
// the configured timeout.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder wraps already-open sinks.
func NewRecorder(timeout time.Duration, logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Recorder{sinks: sinks, timeout: timeout, logger: logger.With("component", "audit")}
}

// Open builds a Recorder from config. A sink that cannot be opened is logged
// and left out, so audit problems never stop the service from starting.
func Open(ctx context.Context, config Config, logger *slog.Logger) *Recorder {
	r := NewRecorder(config.Timeout, logger)
	if config.JSONLPath != "" {
		if s, err := NewJSONLSink(config.JSONLPath); err != nil {
			r.logger.Error("audit sink unavailable", "sink", "jsonl", "path", config.JSONLPath, "error", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}
	if config.SQLitePath != "" {
		if s, err := NewSQLiteSink(config.SQLitePath); err != nil {
			r.logger.Error("audit sink unavailable", "sink", "sqlite", "path", config.SQLitePath, "error", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}
	if config.PostgresDSN != "" {
		if s, err := NewPostgresSink(ctx, config.PostgresDSN); err != nil {
			r.logger.Error("audit sink unavailable", "sink", "postgres", "error", err)
		} else {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Record builds and appends one event. A nil Recorder drops it.
func (r *Recorder) Record(ctx context.Context, correlationID string, typ Type, data map[string]any) {
	if r == nil {
		return
	}
	r.Append(ctx, NewEvent(correlationID, typ, data))
}

// Append writes e to every sink and reports how many accepted it.
func (r *Recorder) Append(ctx context.Context, e Event) int {
	if r == nil {
		return 0
	}
	ok := 0
	for _, s := range r.sinks {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		err := s.Append(wctx, e)
		cancel()
		if err != nil {
			r.logger.Error("audit write failed",
				"sink", fmt.Sprintf("%T", s), "event", e.Type, "correlation_id", e.CorrelationID, "error", err)
			continue
		}
		ok++
	}
	return ok
}

// Reader returns the first sink that can be queried, or nil.
func (r *Recorder) Reader() Reader {
	if r == nil {
		return nil
	}
	for _, s := range r.sinks {
		if rd, ok := s.(Reader); ok {
			return rd
		}
	}
	return nil
}

// Close closes every sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion recorder

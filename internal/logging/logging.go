// Package logging builds the process logger. Library packages never log
// through a global; they receive the *slog.Logger built here.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// #region levels
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// #endregion levels

// #region config
// Config selects the handler and level.
type Config struct {
	Level  string `yaml:"level"`  // TRACE | DEBUG | INFO | WARN | ERROR
	Format string `yaml:"format"` // json | text
}

func DefaultConfig() Config {
	return Config{Level: "INFO", Format: "json"}
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "text":
		return nil
	}
	return fmt.Errorf("log: unknown format %q", c.Format)
}

// #endregion config

// #region new
// New returns a logger writing to w. The level is held in a LevelVar so
// callers can change it at runtime.
func New(c Config, w io.Writer) (*slog.Logger, *slog.LevelVar, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	level, _ := ParseLevel(c.Level)
	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	var h slog.Handler
	if strings.EqualFold(c.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), lv, nil
}

// #endregion new

// Package config loads the agent configuration: a YAML file over built-in
// defaults, then REFUND_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/fallback"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/logging"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/scoring"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/server"
)

// #region types
type Config struct {
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Retrieval     retrieval.Config    `yaml:"retrieval"`
	Rules         rules.Config        `yaml:"rules"`
	Scoring       scoring.Config      `yaml:"scoring"`
	Fallback      fallback.Config     `yaml:"fallback"`
	Audit         audit.Config        `yaml:"audit"`
	Log           logging.Config      `yaml:"log"`
	Server        server.Config       `yaml:"server"`
	Batch         BatchConfig         `yaml:"batch"`
}

// KnowledgeBaseConfig points at a policy CSV. Empty uses the embedded one.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// #endregion types

// #region defaults
func Default() Config {
	return Config{
		Retrieval: retrieval.DefaultConfig(),
		Rules:     rules.DefaultConfig(),
		Scoring:   scoring.DefaultConfig(),
		Fallback:  fallback.DefaultConfig(),
		Audit:     audit.DefaultConfig(),
		Log:       logging.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Batch:     BatchConfig{Workers: 4},
	}
}

// #endregion defaults

// #region load
// Load reads path (optional) and applies environment overrides. ${VAR}
// references in the file are expanded before parsing.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML over the values already in cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets REFUND_* variables win over the file.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("REFUND_LOG_LEVEL", &cfg.Log.Level)
	str("REFUND_LOG_FORMAT", &cfg.Log.Format)
	str("REFUND_KB_PATH", &cfg.KnowledgeBase.Path)
	str("REFUND_FALLBACK_BACKEND", &cfg.Fallback.Backend)
	if v := os.Getenv("REFUND_FALLBACK_BACKENDS"); v != "" {
		cfg.Fallback.Backends = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Fallback.Backends = append(cfg.Fallback.Backends, name)
			}
		}
	}
	duration("REFUND_FALLBACK_TIMEOUT", &cfg.Fallback.Timeout)
	str("REFUND_GRPC_ADDR", &cfg.Fallback.GRPC.Addr)
	str("REFUND_OLLAMA_URL", &cfg.Fallback.Ollama.URL)
	str("REFUND_OLLAMA_MODEL", &cfg.Fallback.Ollama.Model)
	float("REFUND_CONFIDENCE_THRESHOLD", &cfg.Fallback.ConfidenceThreshold)
	float("REFUND_HIGH_VALUE_LIMIT", &cfg.Rules.HighValueLimit)
	str("REFUND_AUDIT_JSONL", &cfg.Audit.JSONLPath)
	str("REFUND_AUDIT_SQLITE", &cfg.Audit.SQLitePath)
	str("REFUND_AUDIT_PG_DSN", &cfg.Audit.PostgresDSN)
	str("REFUND_SERVER_ADDR", &cfg.Server.Addr)
	integer("REFUND_BATCH_WORKERS", &cfg.Batch.Workers)

	return errors.Join(errs...)
}

// #endregion load

// #region validate
// Validate reports every invalid section at once.
func (c Config) Validate() error {
	errs := []error{
		c.Retrieval.Validate(),
		c.Rules.Validate(),
		c.Scoring.Validate(),
		c.Fallback.Validate(),
		c.Audit.Validate(),
		c.Log.Validate(),
		c.Server.Validate(),
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch: workers must be > 0, got %d", c.Batch.Workers))
	}
	return errors.Join(errs...)
}

// #endregion validate

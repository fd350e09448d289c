// Package agent assembles the decision pipeline from a config.Config.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/fallback"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/orchestrator"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/scoring"
)

// Agent owns a wired orchestrator and the resources behind it.
type Agent struct {
	Orchestrator *orchestrator.Orchestrator
	Corpus       *corpus.Corpus
	Engine       *rules.Engine
	Recorder     *audit.Recorder
	Analyzer     *fallback.Analyzer

	closers []io.Closer
}

// Option adjusts the build.
type Option func(*buildOptions)

type buildOptions struct {
	sinks    []audit.Sink
	sinksSet bool
	backend  fallback.Backend
}

// WithSinks replaces the configured audit sinks. No sinks disables auditing.
func WithSinks(sinks ...audit.Sink) Option {
	return func(b *buildOptions) { b.sinks, b.sinksSet = sinks, true }
}

// WithBackend replaces the configured fallback backend.
func WithBackend(backend fallback.Backend) Option {
	return func(b *buildOptions) { b.backend = backend }
}

// Build loads the knowledge base and wires every stage.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	var (
		kb  *corpus.Corpus
		err error
	)
	if cfg.KnowledgeBase.Path != "" {
		kb, err = corpus.LoadFile(cfg.KnowledgeBase.Path, logger)
	} else {
		kb, err = corpus.Default(logger)
	}
	if err != nil {
		return nil, err
	}

	idx, err := retrieval.BuildIndex(kb)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	engine, err := rules.NewDefaultEngine(cfg.Rules, logger)
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	a := &Agent{Corpus: kb, Engine: engine}

	backend := bo.backend
	if backend == nil {
		backend, err = fallback.NewBackend(cfg.Fallback)
		if err != nil {
			return nil, err
		}
		if c, ok := backend.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}
	a.Analyzer = fallback.NewAnalyzer(backend, cfg.Fallback, logger)

	if bo.sinksSet {
		a.Recorder = audit.NewRecorder(cfg.Audit.Timeout, logger, bo.sinks...)
	} else {
		a.Recorder = audit.Open(ctx, cfg.Audit, logger)
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Components{
		Retriever: retrieval.NewRetriever(idx, cfg.Retrieval, logger),
		Rules:     engine,
		Scorer:    scorer,
		Fallback:  a.Analyzer,
	}, logger, orchestrator.WithRecorder(a.Recorder))
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("agent ready",
		"policies", kb.Len(),
		"rules", len(engine.Rules()),
		"backend", a.Analyzer.BackendName())
	return a, nil
}

// Close releases the fallback backend and the audit sinks.
func (a *Agent) Close() error {
	errs := []error{a.Recorder.Close()}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

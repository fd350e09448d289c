package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

// #region result
// Result is the analyzer's final answer after the safety net.
type Result struct {
	Verdict      refund.Verdict `json:"verdict"`
	Suggested    refund.Verdict `json:"suggested"` // before the safety net
	Confidence   float64        `json:"confidence"`
	Explanation  string         `json:"explanation"`
	Method       string         `json:"method"` // backend name or "heuristic"
	Model        string         `json:"model,omitempty"`
	Degraded     bool           `json:"degraded"` // a configured backend failed
	BackendError string         `json:"backend_error,omitempty"`
	SafetyNet    bool           `json:"safety_net"` // verdict forced to MANUAL_REVIEW
	Latency      time.Duration  `json:"latency"`
}

// #endregion result

// #region analyzer
// Analyzer asks the configured backend first and the local heuristic when
// the backend is absent or fails. It never returns an error.
type Analyzer struct {
	backend   Backend
	heuristic *Heuristic
	config    Config
	logger    *slog.Logger
}

// NewAnalyzer creates an Analyzer. backend may be nil ("none configured").
func NewAnalyzer(backend Backend, config Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		backend:   backend,
		heuristic: NewHeuristic(config.HeuristicCap),
		config:    config,
		logger:    logger.With("component", "fallback"),
	}
}

// BackendName reports the configured backend, "none" when absent.
func (a *Analyzer) BackendName() string {
	if a.backend == nil {
		return BackendNone
	}
	return a.backend.Name()
}

// Analyze produces a verdict for a request the rules could not decide.
// Confidence below ConfidenceThreshold forces MANUAL_REVIEW.
func (a *Analyzer) Analyze(ctx context.Context, req refund.Request, policies []retrieval.Result) Result {
	start := time.Now()
	prompt := Prompt{
		Request:  req,
		Policies: policies,
		Context:  retrieval.FormatContext(policies, a.config.MaxContextChars),
	}

	var res Result
	if a.backend != nil {
		s, err := a.callBackend(ctx, prompt)
		if err == nil {
			method := s.Backend
			if method == "" {
				method = a.backend.Name()
			}
			res = Result{Suggested: s.Verdict, Confidence: s.Confidence, Explanation: s.Explanation,
				Method: method, Model: s.Model}
		} else {
			a.logger.Warn("backend failed, using local heuristic", "backend", a.backend.Name(), "error", err)
			res.Degraded = true
			res.BackendError = err.Error()
		}
	}
	if res.Method == "" {
		s := a.heuristic.classify(req, policies)
		res.Suggested = s.Verdict
		res.Confidence = s.Confidence
		res.Explanation = s.Explanation
		res.Method = a.heuristic.Name()
		res.Model = s.Model
	}

	res.Verdict = res.Suggested
	if res.Confidence < a.config.ConfidenceThreshold {
		res.Verdict = refund.VerdictManualReview
		res.SafetyNet = res.Suggested != refund.VerdictManualReview
		res.Explanation = fmt.Sprintf("%s Confiança %.2f abaixo do limite %.2f: encaminhado para análise manual.",
			res.Explanation, res.Confidence, a.config.ConfidenceThreshold)
	}
	res.Latency = time.Since(start)
	return res
}

// callBackend bounds the call by the configured timeout, once per chained
// backend. A backend that
// ignores cancellation is abandoned; the buffered reply lets its goroutine
// finish without blocking. Panics and invalid suggestions become errors.
func (a *Analyzer) callBackend(ctx context.Context, p Prompt) (Suggestion, error) {
	timeout := a.config.Timeout
	if c, ok := a.backend.(*Chain); ok {
		timeout *= time.Duration(c.Len())
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		s   Suggestion
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("%w: backend panic: %v", ErrBackendUnavailable, r)}
			}
		}()
		s, err := a.backend.Analyze(ctx, p)
		ch <- reply{s: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if !errors.Is(r.err, ErrBackendUnavailable) && !errors.Is(r.err, ErrMalformedResponse) {
				r.err = fmt.Errorf("%w: %v", ErrBackendUnavailable, r.err)
			}
			return Suggestion{}, r.err
		}
		if err := r.s.validate(); err != nil {
			return Suggestion{}, err
		}
		return r.s, nil
	case <-ctx.Done():
		return Suggestion{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
	}
}

// #endregion analyzer

// #region factory
// NewBackend builds the configured backends in preference order. It returns
// nil when none is configured and a Chain when more than one is.
func NewBackend(config Config) (Backend, error) {
	var backends []Backend
	for _, name := range config.BackendNames() {
		switch name {
		case BackendNone:
			continue
		case BackendGRPC:
			b, err := NewGRPCBackend(config.GRPC.Addr)
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		case BackendOllama:
			backends = append(backends, NewOllamaBackend(config.Ollama, nil))
		default:
			return nil, fmt.Errorf("fallback: unknown backend %q", name)
		}
	}
	return NewChain(config.Timeout, backends...), nil
}

// #endregion factory

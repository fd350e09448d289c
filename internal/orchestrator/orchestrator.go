package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/fallback"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/scoring"
)

// #endregion

// #region orchestrator-struct

// Orchestrator sequences retrieval, rules, scoring and the fallback analyzer
// for one request at a time. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	components Components
	recorder   *audit.Recorder
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Components groups the pipeline stages.
type Components struct {
	Retriever Retriever
	Rules     RuleEvaluator
	Scorer    Scorer
	Fallback  FallbackAnalyzer
}

// #endregion

// #region constructor

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sends audit events to r.
func WithRecorder(r *audit.Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithIDs replaces the correlation id generator.
func WithIDs(newID func() string) Option { return func(o *Orchestrator) { o.newID = newID } }

// New wires an orchestrator. Every component is required; the recorder is
// optional.
func New(deps Components, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Retriever == nil:
		return nil, errors.New("orchestrator: retriever is required")
	case deps.Rules == nil:
		return nil, errors.New("orchestrator: rule evaluator is required")
	case deps.Scorer == nil:
		return nil, errors.New("orchestrator: scorer is required")
	case deps.Fallback == nil:
		return nil, errors.New("orchestrator: fallback analyzer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		components: deps,
		logger:     logger.With("component", "orchestrator"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// #endregion

// #region decide

// Decide runs the pipeline and returns the Decision. The only error is a
// *refund.InputError, returned before any stage runs.
func (o *Orchestrator) Decide(ctx context.Context, req refund.Request) (refund.Decision, error) {
	out, err := o.DecideTrace(ctx, req)
	if err != nil {
		return refund.Decision{}, err
	}
	return out.Decision, nil
}

// DecideTrace is Decide plus every intermediate result.
func (o *Orchestrator) DecideTrace(ctx context.Context, req refund.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		o.logger.Info("request rejected", "error", err)
		return Outcome{}, err
	}

	r := &run{
		req:           req,
		correlationID: o.newID(),
		start:         o.now(),
		ctx:           ctx,
	}
	log := o.logger.With("correlation_id", r.correlationID)
	o.record(r, audit.TypeRequestReceived, map[string]any{
		"request_id":      req.ID,
		"category":        string(req.Category),
		"order_status":    string(req.OrderStatus),
		"reason_code":     string(req.ReasonCode),
		"order_value":     req.OrderValue,
		"elapsed_minutes": req.ElapsedMinutes,
		"free_text":       req.FreeText,
	})

	state := StateRetrieve
	r.path = append(r.path, StateStart)
	for state != StateEnd {
		r.path = append(r.path, state)
		state = o.step(r, state, log)
	}
	r.path = append(r.path, StateEnd)

	d := r.decision
	log.Info("decision",
		"verdict", d.Verdict, "source", d.SourceMethod, "rule", d.RuleID,
		"confidence", d.Confidence, "score", d.Score, "degraded", d.Degraded,
		"elapsed", d.ProcessingTime)

	return Outcome{
		Decision:  d,
		Retrieved: r.retrieved,
		Rules:     r.rules,
		Breakdown: r.breakdown,
		Fallback:  r.fallback,
		Path:      r.path,
		Failures:  r.failures,
	}, nil
}

// #endregion

// #region run

// run is the state of one pipeline pass. It never leaves DecideTrace.
type run struct {
	ctx           context.Context
	req           refund.Request
	correlationID string
	start         time.Time

	retrieved []retrieval.Result
	rules     rules.Result
	decisive  *rules.Verdict
	breakdown scoring.Breakdown
	fallback  *fallback.Result
	failures  []StageFailure
	fatal     bool
	path      []State
	decision  refund.Decision
}

// step runs one state and returns the next. A panic in any stage except
// FINALIZE sends the run straight to FINALIZE as a degraded decision.
func (o *Orchestrator) step(r *run, state State, log *slog.Logger) (next State) {
	if state != StateFinalize {
		defer func() {
			if p := recover(); p != nil {
				o.fail(r, state, fmt.Errorf("panic: %v", p), true, log)
				next = StateFinalize
			}
		}()
	}

	switch state {
	case StateRetrieve:
		o.retrieve(r, log)
		return StateApplyRules
	case StateApplyRules:
		o.applyRules(r, log)
		return StateScore
	case StateScore:
		o.score(r)
		if r.decisive != nil {
			return StateFinalize
		}
		return StateFallback
	case StateFallback:
		o.runFallback(r, log)
		return StateFinalize
	case StateFinalize:
		o.finalize(r)
		return StateEnd
	}
	o.fail(r, state, fmt.Errorf("unknown state %q", state), true, log)
	return StateFinalize
}

func (o *Orchestrator) fail(r *run, stage State, err error, fatal bool, log *slog.Logger) {
	r.failures = append(r.failures, StageFailure{Stage: stage, Error: err.Error(), Fatal: fatal})
	if fatal {
		r.fatal = true
		log.Error("stage failed, degrading to manual review", "stage", stage, "error", err)
	} else {
		log.Warn("stage degraded", "stage", stage, "error", err)
	}
	o.record(r, audit.TypePipelineDegraded, map[string]any{
		"stage": string(stage), "error": err.Error(), "fatal": fatal,
	})
}

// #endregion

// #region stages

func (o *Orchestrator) retrieve(r *run, log *slog.Logger) {
	results, err := o.components.Retriever.RetrieveFor(r.req)
	if err != nil {
		// rules and scoring still run on the structured fields
		o.fail(r, StateRetrieve, err, false, log)
		results = nil
	}
	r.retrieved = results

	ids := retrieval.PolicyIDs(results)
	relevance := make([]float64, len(results))
	for i, res := range results {
		relevance[i] = res.Relevance
	}
	log.Debug("retrieved policies", "policies", ids)
	o.record(r, audit.TypeRetrievalPerformed, map[string]any{
		"query":      retrieval.Query(r.req),
		"policy_ids": ids,
		"relevance":  relevance,
	})
}

func (o *Orchestrator) applyRules(r *run, log *slog.Logger) {
	r.rules = o.components.Rules.Evaluate(r.req, r.retrieved)
	verdicts := make([]map[string]any, len(r.rules.Verdicts))
	for i, v := range r.rules.Verdicts {
		entry := map[string]any{"rule_id": v.RuleID, "tier": v.Tier.String(), "outcome": string(v.Outcome)}
		if v.Fault != nil {
			entry["fault"] = v.Fault.Error()
		}
		verdicts[i] = entry
	}
	data := map[string]any{"evaluated": len(r.rules.Verdicts), "faults": r.rules.FaultCount(), "verdicts": verdicts}
	if v, ok := r.rules.Decisive(); ok {
		r.decisive = &v
		data["decisive_rule"] = v.RuleID
		data["outcome"] = string(v.Outcome)
		data["policy_id"] = v.PolicyID
		log.Debug("rule fired", "rule", v.RuleID, "code", v.Code, "outcome", v.Outcome)
	}
	o.record(r, audit.TypeRulesApplied, data)
}

func (o *Orchestrator) score(r *run) {
	r.breakdown = o.components.Scorer.Score(r.req, r.rules, r.retrieved)
	components := map[string]any{}
	for _, c := range r.breakdown.Components() {
		components[c.Name] = c.Value
	}
	total := r.breakdown.Total()
	o.record(r, audit.TypeScoreComputed, map[string]any{
		"components":     components,
		"total":          total,
		"rule_strength":  r.breakdown.RuleStrength,
		"recommendation": string(refund.RecommendationFor(total)),
	})
}

func (o *Orchestrator) runFallback(r *run, log *slog.Logger) {
	res := o.components.Fallback.Analyze(r.ctx, r.req, r.retrieved)
	r.fallback = &res
	if res.Degraded {
		log.Warn("fallback backend degraded", "error", res.BackendError)
	}
	o.record(r, audit.TypeFallbackInvoked, map[string]any{
		"method":        res.Method,
		"model":         res.Model,
		"suggested":     string(res.Suggested),
		"verdict":       string(res.Verdict),
		"confidence":    res.Confidence,
		"degraded":      res.Degraded,
		"backend_error": res.BackendError,
		"safety_net":    res.SafetyNet,
		"latency_ms":    res.Latency.Milliseconds(),
	})
}

// finalize assembles the Decision. It is the only stage without panic
// recovery and uses nothing but values already on the run.
func (o *Orchestrator) finalize(r *run) {
	total := r.breakdown.Total()
	d := refund.Decision{
		CorrelationID:  r.correlationID,
		RequestID:      r.req.ID,
		Score:          total,
		Recommendation: refund.RecommendationFor(total),
		Degraded:       len(r.failures) > 0,
	}

	switch {
	case r.fatal:
		f := r.failures[len(r.failures)-1]
		d.Verdict = refund.VerdictManualReview
		d.ConfidenceLabel = refund.ConfidenceLow
		d.SourceMethod = refund.SourceFallback
		d.MatchedPolicyIDs = retrieval.PolicyIDs(r.retrieved)
		d.Explanation = fmt.Sprintf("Degradação do sistema na etapa %s (%s). Encaminhado para análise manual.", f.Stage, f.Error)
	case r.decisive != nil:
		v := *r.decisive
		d.Verdict, _ = v.Outcome.Verdict()
		d.ConfidenceLabel = v.Confidence
		d.Confidence = v.Strength
		d.RuleID = v.RuleID
		d.SourceMethod = refund.SourceRule
		d.MatchedPolicyIDs = citedFirst(v.PolicyID, r.retrieved)
		d.Explanation = v.Rationale
	case r.fallback != nil:
		f := *r.fallback
		d.Verdict = f.Verdict
		d.Confidence = f.Confidence
		d.ConfidenceLabel = refund.LabelFor(f.Confidence)
		d.SourceMethod = refund.SourceFallback
		d.MatchedPolicyIDs = retrieval.PolicyIDs(r.retrieved)
		d.Explanation = f.Explanation
		d.Degraded = d.Degraded || f.Degraded
	}
	if d.MatchedPolicyIDs == nil {
		d.MatchedPolicyIDs = []string{}
	}

	d.DecidedAt = o.now()
	d.ProcessingTime = d.DecidedAt.Sub(r.start)
	r.decision = d

	o.record(r, audit.TypeDecisionFinal, map[string]any{
		"verdict":            string(d.Verdict),
		"confidence_label":   string(d.ConfidenceLabel),
		"confidence":         d.Confidence,
		"score":              d.Score,
		"recommendation":     string(d.Recommendation),
		"matched_policy_ids": d.MatchedPolicyIDs,
		"rule_id":            d.RuleID,
		"source_method":      string(d.SourceMethod),
		"explanation":        d.Explanation,
		"degraded":           d.Degraded,
		"processing_time_ms": float64(d.ProcessingTime.Microseconds()) / 1000,
	})
}

// citedFirst lists the retrieved policy ids with the one the rule cited in
// front.
func citedFirst(cited string, retrieved []retrieval.Result) []string {
	ids := retrieval.PolicyIDs(retrieved)
	if cited == "" {
		return ids
	}
	out := make([]string, 0, len(ids))
	out = append(out, cited)
	for _, id := range ids {
		if id != cited {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) record(r *run, typ audit.Type, data map[string]any) {
	o.recorder.Record(r.ctx, r.correlationID, typ, data)
}

// #endregion

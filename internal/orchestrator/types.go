package orchestrator

// #region imports
import (
	"context"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/fallback"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/scoring"
)

// #endregion

// #region state

// State is a step of the decision pipeline.
type State string

const (
	StateStart      State = "START"
	StateRetrieve   State = "RETRIEVE"
	StateApplyRules State = "APPLY_RULES"
	StateScore      State = "SCORE"
	StateFallback   State = "FALLBACK"
	StateFinalize   State = "FINALIZE"
	StateEnd        State = "END"
)

// #endregion

// #region interfaces

// Retriever supplies the policies relevant to a request.
type Retriever interface {
	RetrieveFor(req refund.Request) ([]retrieval.Result, error)
}

// RuleEvaluator applies the rule catalog.
type RuleEvaluator interface {
	Evaluate(req refund.Request, retrieved []retrieval.Result) rules.Result
}

// Scorer computes the weighted score breakdown.
type Scorer interface {
	Score(req refund.Request, verdicts rules.Result, retrieved []retrieval.Result) scoring.Breakdown
}

// FallbackAnalyzer decides the requests no rule settles.
type FallbackAnalyzer interface {
	Analyze(ctx context.Context, req refund.Request, policies []retrieval.Result) fallback.Result
}

// #endregion

// #region outcome

// Outcome is a Decision together with every intermediate result that led to
// it. Callers that only need the verdict use Decide.
type Outcome struct {
	Decision  refund.Decision
	Retrieved []retrieval.Result
	Rules     rules.Result
	Breakdown scoring.Breakdown
	Fallback  *fallback.Result // nil when a rule decided
	Path      []State
	Failures  []StageFailure
}

// StageFailure records a stage that panicked or could not run.
type StageFailure struct {
	Stage State  `json:"stage"`
	Error string `json:"error"`
	Fatal bool   `json:"fatal"` // forced the MANUAL_REVIEW degradation
}

// #endregion

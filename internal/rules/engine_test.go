package rules

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

// #region helpers
func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewDefaultEngine(DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func retrieved(ids ...string) []retrieval.Result {
	out := make([]retrieval.Result, len(ids))
	for i, id := range ids {
		out[i] = retrieval.Result{Document: corpus.PolicyDocument{ID: id}, Relevance: 0.5}
	}
	return out
}

func allPolicies() []retrieval.Result {
	return retrieved("POL-1.1", "POL-2.1", "POL-2.2", "POL-3.1", "POL-3.2", "POL-4.1",
		"POL-5.1", "POL-5.2", "POL-6.1", "POL-7.1", "POL-7.2", "POL-8.1", "POL-9.1")
}

func request(cat refund.Category, status refund.OrderStatus, reason refund.ReasonCode, value float64, minutes int) refund.Request {
	return refund.Request{Category: cat, OrderStatus: status, ReasonCode: reason, OrderValue: value, ElapsedMinutes: minutes}
}

// #endregion helpers

// #region catalog-tests
func TestCatalog_SixteenRulesInTierOrder(t *testing.T) {
	defs := Catalog()
	if len(defs) != 16 {
		t.Fatalf("expected 16 rules, got %d", len(defs))
	}
	seen := map[string]bool{}
	for i, d := range defs {
		if seen[d.ID] {
			t.Errorf("duplicate rule id %s", d.ID)
		}
		seen[d.ID] = true
		if i > 0 && d.Tier < defs[i-1].Tier {
			t.Errorf("rule %s declared out of tier order", d.ID)
		}
	}
}

func TestNewEngine_CompilesCatalog(t *testing.T) {
	e := newEngine(t)
	if len(e.Rules()) != 16 {
		t.Fatalf("expected 16 compiled rules, got %d", len(e.Rules()))
	}
}

// #endregion catalog-tests

// #region evaluate-tests
func TestEvaluate_Scenarios(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		name    string
		req     refund.Request
		rule    string
		code    string
		outcome Outcome
	}{
		{"restaurant cancelled", request(refund.CategoryCancellation, refund.StatusAwaitingConfirmation, refund.ReasonRestaurantCancelled, 45, 0),
			"CANCELAMENTO_C1", "CANCELAMENTO_C1", Approve},
		{"remorse after dispatch", request(refund.CategoryCancellation, refund.StatusOutForDelivery, refund.ReasonBuyerRemorse, 45, 0),
			"ARREPENDIMENTO_R2", "ARREPENDIMENTO_R2", Reject},
		{"remorse while preparing", request(refund.CategoryCancellation, refund.StatusPreparing, refund.ReasonBuyerRemorse, 45, 0),
			"ARREPENDIMENTO_R1", "ARREPENDIMENTO_R1", Approve},
		{"remorse before confirmation", request(refund.CategoryCancellation, refund.StatusAwaitingConfirmation, refund.ReasonBuyerRemorse, 45, 0),
			"CANCELAMENTO_C3", "CANCELAMENTO_C3", Approve},
		{"account takeover", request(refund.CategoryFraud, refund.StatusDelivered, refund.ReasonAccountTakeover, 20, 0),
			"FRAUDE_F2", "FRAUDE_F2", ManualReview},
		{"unrecognized purchase beats high value", request(refund.CategoryFraud, refund.StatusDelivered, refund.ReasonUnrecognizedPurchase, 900, 0),
			"FRAUDE_F1", "FRAUDE_F1", ManualReview},
		{"multiple charges", request(refund.CategoryBilling, refund.StatusDelivered, refund.ReasonMultipleCharges, 20, 0),
			"FRAUDE_F3", "FRAUDE_F3", ManualReview},
		{"high value support", request(refund.CategorySupport, refund.StatusDelivered, refund.ReasonOther, 350, 0),
			"VALOR_V1", "VALOR_V1", ManualReview},
		{"not received", request(refund.CategoryDelivery, refund.StatusDelivered, refund.ReasonNotReceived, 80, 0),
			"ENTREGA_D1", "ENTREGA_D1", Approve},
		{"not received high value", request(refund.CategoryDelivery, refund.StatusDelivered, refund.ReasonNotReceived, 350, 0),
			"ENTREGA_D1", "ENTREGA_D1_ALTO_VALOR", ManualReview},
		{"critical delay", request(refund.CategoryRefund, refund.StatusOutForDelivery, refund.ReasonDeliveryDelay, 50, 75),
			"ATRASO_A1", "ATRASO_A1_CRITICO", Approve},
		{"significant delay", request(refund.CategoryRefund, refund.StatusOutForDelivery, refund.ReasonDeliveryDelay, 50, 45),
			"ATRASO_A1", "ATRASO_A1_SIGNIFICATIVO", Approve},
		{"moderate delay", request(refund.CategoryRefund, refund.StatusOutForDelivery, refund.ReasonDeliveryDelay, 50, 10),
			"ATRASO_A1", "ATRASO_A1_MODERADO", Escalate},
		{"duplicate charge", request(refund.CategoryBilling, refund.StatusDelivered, refund.ReasonDuplicateCharge, 50, 0),
			"FINANCEIRO_FIN1", "FINANCEIRO_FIN1", Approve},
		{"courier error", request(refund.CategoryDelivery, refund.StatusDelivered, refund.ReasonCourierError, 50, 0),
			"ERRO_E2", "ERRO_E2", Approve},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := e.Evaluate(c.req, allPolicies())
			v, ok := res.Decisive()
			if !ok {
				t.Fatal("expected a decisive verdict")
			}
			if v.RuleID != c.rule || v.Code != c.code || v.Outcome != c.outcome {
				t.Errorf("got %s/%s/%s, want %s/%s/%s", v.RuleID, v.Code, v.Outcome, c.rule, c.code, c.outcome)
			}
			if v.Rationale == "" {
				t.Error("expected a rationale")
			}
		})
	}
}

func TestEvaluate_FirstDeclaredWinsWithinTier(t *testing.T) {
	e := newEngine(t)
	res := e.Evaluate(request(refund.CategoryCancellation, refund.StatusAwaitingConfirmation, refund.ReasonRestaurantCancelled, 45, 0), allPolicies())
	v, _ := res.Decisive()
	if v.RuleID != "CANCELAMENTO_C1" {
		t.Fatalf("expected CANCELAMENTO_C1, got %s", v.RuleID)
	}
	var c3 *Verdict
	for i := range res.Verdicts {
		if res.Verdicts[i].RuleID == "CANCELAMENTO_C3" {
			c3 = &res.Verdicts[i]
		}
	}
	if c3 == nil || c3.Outcome != Approve {
		t.Fatal("expected CANCELAMENTO_C3 to be evaluated and recorded as firing")
	}
	for _, v := range res.Verdicts {
		if v.Tier > TierCancellation {
			t.Errorf("rule %s of a later tier was evaluated", v.RuleID)
		}
	}
}

func TestEvaluate_MissingPolicyAbstains(t *testing.T) {
	e := newEngine(t)
	req := request(refund.CategoryCancellation, refund.StatusAwaitingConfirmation, refund.ReasonRestaurantCancelled, 45, 0)

	if _, ok := e.Evaluate(req, nil).Decisive(); ok {
		t.Fatal("expected every rule to abstain without retrieved policies")
	}

	v, ok := e.Evaluate(req, retrieved("POL-1.1")).Decisive()
	if !ok || v.RuleID != "CANCELAMENTO_C3" {
		t.Fatalf("expected CANCELAMENTO_C3 with only POL-1.1 retrieved, got %+v", v)
	}
	if v.PolicyID != "POL-1.1" {
		t.Errorf("expected cited policy POL-1.1, got %q", v.PolicyID)
	}
}

func TestEvaluate_PolicyMatchCanBeDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequirePolicyMatch = false
	e, err := NewDefaultEngine(cfg, quiet())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	v, ok := e.Evaluate(request(refund.CategoryCancellation, refund.StatusPreparing, refund.ReasonRestaurantCancelled, 45, 0), nil).Decisive()
	if !ok || v.RuleID != "CANCELAMENTO_C1" {
		t.Fatalf("expected CANCELAMENTO_C1, got %+v", v)
	}
}

func TestEvaluate_FraudAndHighValueNeedNoPolicy(t *testing.T) {
	e := newEngine(t)
	if v, ok := e.Evaluate(request(refund.CategoryFraud, refund.StatusDelivered, refund.ReasonAccountTakeover, 10, 0), nil).Decisive(); !ok || v.Outcome != ManualReview {
		t.Fatalf("expected fraud rule without policies, got %+v", v)
	}
	if v, ok := e.Evaluate(request(refund.CategorySupport, refund.StatusDelivered, refund.ReasonOther, 301, 0), nil).Decisive(); !ok || v.RuleID != "VALOR_V1" {
		t.Fatalf("expected VALOR_V1 without policies, got %+v", v)
	}
}

func TestEvaluate_AllAbstainRecordsEveryRule(t *testing.T) {
	e := newEngine(t)
	res := e.Evaluate(request(refund.CategorySupport, refund.StatusDelivered, refund.ReasonOther, 50, 0), allPolicies())
	if _, ok := res.Decisive(); ok {
		t.Fatal("expected no decisive verdict")
	}
	if len(res.Verdicts) != 16 {
		t.Fatalf("expected 16 recorded verdicts, got %d", len(res.Verdicts))
	}
	for _, v := range res.Verdicts {
		if v.Outcome != Abstain {
			t.Errorf("rule %s did not abstain", v.RuleID)
		}
	}
}

func TestEvaluate_RationaleInterpolation(t *testing.T) {
	e := newEngine(t)
	v, _ := e.Evaluate(request(refund.CategoryDelivery, refund.StatusDelivered, refund.ReasonNotReceived, 350, 0), allPolicies()).Decisive()
	if !strings.Contains(v.Rationale, "R$350.00") {
		t.Errorf("expected value in rationale, got %q", v.Rationale)
	}
	v, _ = e.Evaluate(request(refund.CategoryRefund, refund.StatusDelivered, refund.ReasonDeliveryDelay, 50, 75), allPolicies()).Decisive()
	if !strings.Contains(v.Rationale, "75 minutos") {
		t.Errorf("expected minutes in rationale, got %q", v.Rationale)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := newEngine(t)
	req := request(refund.CategoryRefund, refund.StatusDelivered, refund.ReasonDeliveryDelay, 50, 45)
	a := e.Evaluate(req, allPolicies())
	b := e.Evaluate(req, allPolicies())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("evaluation is not deterministic")
	}
}

func TestEvaluate_ThresholdsFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighValueLimit = 100
	e, err := NewDefaultEngine(cfg, quiet())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	v, ok := e.Evaluate(request(refund.CategorySupport, refund.StatusDelivered, refund.ReasonOther, 150, 0), nil).Decisive()
	if !ok || v.RuleID != "VALOR_V1" {
		t.Fatalf("expected VALOR_V1 at a lowered limit, got %+v", v)
	}
}

// #endregion evaluate-tests

// #region fault-tests
func TestEvaluate_FaultingRuleAbstainsAndEvaluationContinues(t *testing.T) {
	defs := []Definition{
		{ID: "BROKEN", Tier: TierFraud, Expression: `1 / (elapsed_minutes - elapsed_minutes) > 0`,
			Branches: map[string]Branch{BranchMatch: {Code: "BROKEN", Outcome: Reject}}},
		{ID: "UNKNOWN_BRANCH", Tier: TierFraud, Expression: `"nowhere"`,
			Branches: map[string]Branch{BranchMatch: {Code: "UNKNOWN_BRANCH", Outcome: Reject}}},
		{ID: "FALLBACK_OK", Tier: TierFraud, Expression: `true`,
			Branches: map[string]Branch{BranchMatch: {Code: "FALLBACK_OK", Outcome: Escalate}}},
	}
	e, err := NewEngine(defs, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	res := e.Evaluate(request(refund.CategorySupport, refund.StatusDelivered, refund.ReasonOther, 10, 5), nil)
	if res.FaultCount() != 2 {
		t.Fatalf("expected 2 faults, got %d", res.FaultCount())
	}
	for _, v := range res.Verdicts[:2] {
		if v.Outcome != Abstain || !errors.Is(v.Fault, ErrRuleFault) {
			t.Errorf("rule %s: expected faulted abstain, got %+v", v.RuleID, v)
		}
	}
	v, ok := res.Decisive()
	if !ok || v.RuleID != "FALLBACK_OK" {
		t.Fatalf("expected FALLBACK_OK to win, got %+v", v)
	}
}

func TestNewEngine_RejectsBadDefinitions(t *testing.T) {
	match := map[string]Branch{BranchMatch: {Code: "X", Outcome: Approve}}
	cases := map[string][]Definition{
		"syntax":        {{ID: "A", Tier: TierFraud, Expression: `reason ==`, Branches: match}},
		"undeclared":    {{ID: "A", Tier: TierFraud, Expression: `customer == "x"`, Branches: match}},
		"non bool":      {{ID: "A", Tier: TierFraud, Expression: `order_value + 1.0`, Branches: match}},
		"duplicate":     {{ID: "A", Tier: TierFraud, Expression: `true`, Branches: match}, {ID: "A", Tier: TierFraud, Expression: `true`, Branches: match}},
		"no branches":   {{ID: "A", Tier: TierFraud, Expression: `true`}},
		"empty rule id": {{Tier: TierFraud, Expression: `true`, Branches: match}},
	}
	for name, defs := range cases {
		if _, err := NewEngine(defs, DefaultConfig(), quiet()); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewEngine_SortsByTierKeepingDeclarationOrder(t *testing.T) {
	match := map[string]Branch{BranchMatch: {Code: "X", Outcome: Approve}}
	e, err := NewEngine([]Definition{
		{ID: "late", Tier: TierHighValue, Expression: `true`, Branches: match},
		{ID: "early-1", Tier: TierFraud, Expression: `true`, Branches: match},
		{ID: "early-2", Tier: TierFraud, Expression: `true`, Branches: match},
	}, DefaultConfig(), quiet())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ids := []string{}
	for _, d := range e.Rules() {
		ids = append(ids, d.ID)
	}
	if !reflect.DeepEqual(ids, []string{"early-1", "early-2", "late"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	v, _ := e.Evaluate(refund.Request{}, nil).Decisive()
	if v.RuleID != "early-1" {
		t.Errorf("expected early-1 to win, got %s", v.RuleID)
	}
}

// #endregion fault-tests

// #region config-tests
func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.CriticalDelayMinutes = 10
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when critical < significant delay")
	}
	cfg = DefaultConfig()
	cfg.HighValueLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero high value limit")
	}
}

func TestOutcome_Verdict(t *testing.T) {
	if v, ok := Reject.Verdict(); !ok || v != refund.VerdictReject {
		t.Errorf("unexpected %v %v", v, ok)
	}
	if _, ok := Abstain.Verdict(); ok {
		t.Error("abstain must not map to a verdict")
	}
}

// #endregion config-tests

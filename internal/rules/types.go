package rules

import (
	"errors"
	"fmt"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// ErrRuleFault marks a rule whose predicate failed at evaluation time. The
// rule is recorded as ABSTAIN and evaluation continues.
var ErrRuleFault = errors.New("rule evaluation fault")

// #region outcome
// Outcome is a rule's verdict, or ABSTAIN when the rule does not apply.
type Outcome string

const (
	Approve      Outcome = "APPROVE"
	Reject       Outcome = "REJECT"
	ManualReview Outcome = "MANUAL_REVIEW"
	Escalate     Outcome = "ESCALATE"
	Abstain      Outcome = "ABSTAIN"
)

// Verdict converts a non-abstaining outcome into a refund verdict.
func (o Outcome) Verdict() (refund.Verdict, bool) {
	switch o {
	case Approve:
		return refund.VerdictApprove, true
	case Reject:
		return refund.VerdictReject, true
	case ManualReview:
		return refund.VerdictManualReview, true
	case Escalate:
		return refund.VerdictEscalate, true
	}
	return "", false
}

// #endregion outcome

// #region tier
// Tier is a priority group. Lower values are evaluated first.
type Tier int

const (
	TierFraud Tier = iota + 1
	TierCancellation
	TierError
	TierDelivery
	TierBilling
	TierDelay
	TierRemorse
	TierHighValue
)

var tierNames = map[Tier]string{
	TierFraud:        "fraud",
	TierCancellation: "cancellation",
	TierError:        "error",
	TierDelivery:     "delivery",
	TierBilling:      "billing",
	TierDelay:        "delay",
	TierRemorse:      "remorse",
	TierHighValue:    "high_value",
}

func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// #endregion tier

// #region definition
// Branch is what a rule concludes when its expression selects it.
type Branch struct {
	Code       string // policy code reported for this branch, e.g. ATRASO_A1_CRITICO
	Outcome    Outcome
	Confidence refund.ConfidenceLabel
	Strength   float64 // rule strength in [0,1], fed to scoring
	Rationale  string  // may contain {value} and {minutes}
}

// BranchMatch is the branch key a boolean expression selects when true.
const BranchMatch = "match"

// Definition is one rule. Expression is CEL over the request attributes and
// thresholds and evaluates to either a bool (true selects BranchMatch) or a
// branch key string (empty abstains).
type Definition struct {
	ID             string
	Tier           Tier
	Description    string
	Expression     string
	RequiresPolicy string // policy id that must be retrieved for the rule to fire
	Branches       map[string]Branch
}

// #endregion definition

// #region verdict
// Verdict is the recorded result of evaluating one rule.
type Verdict struct {
	RuleID     string
	Tier       Tier
	Code       string
	Outcome    Outcome
	Confidence refund.ConfidenceLabel
	Strength   float64
	PolicyID   string
	Rationale  string
	Fault      error // wraps ErrRuleFault when the predicate failed
}

// Result holds every verdict evaluated up to and including the deciding
// tier, in evaluation order.
type Result struct {
	Verdicts []Verdict
	decisive int
}

// Decisive returns the winning verdict, false when every rule abstained.
func (r Result) Decisive() (Verdict, bool) {
	if r.decisive < 0 || r.decisive >= len(r.Verdicts) {
		return Verdict{}, false
	}
	return r.Verdicts[r.decisive], true
}

// FaultCount returns how many rules failed during evaluation.
func (r Result) FaultCount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Fault != nil {
			n++
		}
	}
	return n
}

// #endregion verdict

// #region config
// Config holds the thresholds rule expressions read at evaluation time.
type Config struct {
	HighValueLimit          float64 `yaml:"high_value_limit"`
	CriticalDelayMinutes    int     `yaml:"critical_delay_minutes"`
	SignificantDelayMinutes int     `yaml:"significant_delay_minutes"`
	RequirePolicyMatch      bool    `yaml:"require_policy_match"`
	CostLimit               uint64  `yaml:"cost_limit"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HighValueLimit:          300.0,
		CriticalDelayMinutes:    60,
		SignificantDelayMinutes: 30,
		RequirePolicyMatch:      true,
		CostLimit:               10000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.HighValueLimit <= 0:
		return fmt.Errorf("rules: high_value_limit must be > 0, got %v", c.HighValueLimit)
	case c.SignificantDelayMinutes <= 0:
		return fmt.Errorf("rules: significant_delay_minutes must be > 0, got %d", c.SignificantDelayMinutes)
	case c.CriticalDelayMinutes < c.SignificantDelayMinutes:
		return fmt.Errorf("rules: critical_delay_minutes (%d) must be >= significant_delay_minutes (%d)",
			c.CriticalDelayMinutes, c.SignificantDelayMinutes)
	}
	return nil
}

// #endregion config

package replay

import (
	"context"
	"fmt"
	"slices"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region types

// Decider is the part of the orchestrator a replay needs.
type Decider interface {
	Decide(ctx context.Context, req refund.Request) (refund.Decision, error)
}

// Result captures the outcome of replaying one case.
type Result struct {
	CaseID   string
	Expected Expectation
	Decision refund.Decision
	Drift    []string // one entry per mismatching field
	Err      error
}

// Matched reports whether the case reproduced its expectation.
func (r Result) Matched() bool { return r.Err == nil && len(r.Drift) == 0 }

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total     int
	Matched   int
	Drifted   int
	Errors    int
	ByVerdict map[refund.Verdict]int
}

// #endregion types

// #region replay

// Replay decides every case again and compares the result with what was
// recorded. A cancelled context stops the run; the cases not reached are
// left out of the results.
func Replay(ctx context.Context, d Decider, cases []FixtureCase) []Result {
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		res := Result{CaseID: c.ID, Expected: c.Expected}
		dec, err := d.Decide(ctx, c.Request)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.Decision = dec
		res.Drift = compare(c.Expected, dec)
		results = append(results, res)
	}
	return results
}

func compare(exp Expectation, d refund.Decision) []string {
	var drift []string
	if exp.Verdict != d.Verdict {
		drift = append(drift, fmt.Sprintf("verdict: expected %s, got %s", exp.Verdict, d.Verdict))
	}
	if exp.RuleID != "" && exp.RuleID != d.RuleID {
		drift = append(drift, fmt.Sprintf("rule_id: expected %s, got %q", exp.RuleID, d.RuleID))
	}
	if exp.SourceMethod != "" && exp.SourceMethod != d.SourceMethod {
		drift = append(drift, fmt.Sprintf("source_method: expected %s, got %s", exp.SourceMethod, d.SourceMethod))
	}
	if exp.PolicyID != "" && !slices.Contains(d.MatchedPolicyIDs, exp.PolicyID) {
		drift = append(drift, fmt.Sprintf("policy: expected %s among %v", exp.PolicyID, d.MatchedPolicyIDs))
	}
	return drift
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), ByVerdict: map[refund.Verdict]int{}}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errors++
		case len(r.Drift) > 0:
			s.Drifted++
		default:
			s.Matched++
		}
		if r.Err == nil {
			s.ByVerdict[r.Decision.Verdict]++
		}
	}
	return s
}

// #endregion replay

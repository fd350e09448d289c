package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureCase is one recorded request and the decision it produced.
type FixtureCase struct {
	ID       string         `json:"id"`
	Request  refund.Request `json:"request"`
	Expected Expectation    `json:"expected"`
}

// Expectation holds the decision fields a replay must reproduce. Empty
// fields are not compared.
type Expectation struct {
	Verdict      refund.Verdict      `json:"verdict"`
	RuleID       string              `json:"rule_id,omitempty"`
	SourceMethod refund.SourceMethod `json:"source_method,omitempty"`
	PolicyID     string              `json:"policy_id,omitempty"` // must appear in matched_policy_ids
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for i, c := range f.Cases {
		if c.ID == "" {
			return nil, fmt.Errorf("parse fixture %s: case %d has no id", path, i)
		}
		if !c.Expected.Verdict.Valid() {
			return nil, fmt.Errorf("parse fixture %s: case %s has invalid verdict %q", path, c.ID, c.Expected.Verdict)
		}
	}
	return &f, nil
}

// FromAudit rebuilds fixture cases from an audit trail: every run with both
// a request_received and a decision_final event becomes a case whose
// expectation is the recorded decision. Runs are ordered by their first
// event.
func FromAudit(events []audit.Event) []FixtureCase {
	type pending struct {
		first    int
		request  *refund.Request
		expected *Expectation
	}
	runs := map[string]*pending{}
	for i, e := range events {
		p, ok := runs[e.CorrelationID]
		if !ok {
			p = &pending{first: i}
			runs[e.CorrelationID] = p
		}
		switch e.Type {
		case audit.TypeRequestReceived:
			req := requestFromData(e.Data)
			p.request = &req
		case audit.TypeDecisionFinal:
			exp := Expectation{
				Verdict:      refund.Verdict(str(e.Data, "verdict")),
				RuleID:       str(e.Data, "rule_id"),
				SourceMethod: refund.SourceMethod(str(e.Data, "source_method")),
			}
			p.expected = &exp
		}
	}

	ids := make([]string, 0, len(runs))
	for id, p := range runs {
		if p.request != nil && p.expected != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return runs[ids[i]].first < runs[ids[j]].first })

	out := make([]FixtureCase, len(ids))
	for i, id := range ids {
		out[i] = FixtureCase{ID: id, Request: *runs[id].request, Expected: *runs[id].expected}
	}
	return out
}

func requestFromData(data map[string]any) refund.Request {
	num := func(k string) float64 {
		switch v := data[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
		return 0
	}
	return refund.Request{
		ID:             str(data, "request_id"),
		Category:       refund.Category(str(data, "category")),
		OrderStatus:    refund.OrderStatus(str(data, "order_status")),
		ReasonCode:     refund.ReasonCode(str(data, "reason_code")),
		OrderValue:     num("order_value"),
		ElapsedMinutes: int(num("elapsed_minutes")),
		FreeText:       str(data, "free_text"),
	}
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// #endregion fixture-loader

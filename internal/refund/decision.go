package refund

import "time"

// #region decision

// Decision is the pipeline's final answer for one Request. It is built once
// at the end of a run and never modified afterwards.
type Decision struct {
	CorrelationID    string          `json:"correlation_id"`
	RequestID        string          `json:"request_id,omitempty"`
	Verdict          Verdict         `json:"verdict"`
	ConfidenceLabel  ConfidenceLabel `json:"confidence_label"`
	Confidence       float64         `json:"confidence"`
	Score            float64         `json:"score"`
	Recommendation   Recommendation  `json:"recommendation"`
	MatchedPolicyIDs []string        `json:"matched_policy_ids"`
	RuleID           string          `json:"rule_id,omitempty"`
	SourceMethod     SourceMethod    `json:"source_method"`
	Explanation      string          `json:"explanation"`
	Degraded         bool            `json:"degraded"`
	ProcessingTime   time.Duration   `json:"processing_time_ns"`
	DecidedAt        time.Time       `json:"decided_at"`
}

// #endregion decision

// #region recommendation

// Recommendation is the advisory reading of the total score. A decisive rule
// verdict always takes precedence over it.
type Recommendation string

const (
	RecommendApprove        Recommendation = "APPROVE"
	RecommendApprovePending Recommendation = "APPROVE_PENDING_VALIDATION"
	RecommendEscalate       Recommendation = "ESCALATE"
	RecommendReject         Recommendation = "REJECT"
)

// RecommendationFor maps a score to its band: >= 0.8 approve, >= 0.6 approve
// pending secondary validation, >= 0.4 escalate, otherwise reject.
func RecommendationFor(score float64) Recommendation {
	switch {
	case score >= 0.8:
		return RecommendApprove
	case score >= 0.6:
		return RecommendApprovePending
	case score >= 0.4:
		return RecommendEscalate
	default:
		return RecommendReject
	}
}

// #endregion recommendation

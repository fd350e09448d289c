package scoring

import (
	"fmt"
	"math"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
)

// #region weights
// Component weights. They are fixed and sum to 1.
const (
	WeightProblemType = 0.25
	WeightOrderValue  = 0.15
	WeightOrderStatus = 0.15
	WeightReason      = 0.25
	WeightPolicy      = 0.20
)

// Component names as they appear in breakdowns and audit records.
const (
	ProblemType = "problem_type"
	OrderValue  = "order_value"
	OrderStatus = "order_status"
	Reason      = "reason"
	Policy      = "policy"
)

// #endregion weights

// #region breakdown
// Breakdown holds each component's value in [0,1] before weighting. The
// total is always derived from these fields.
type Breakdown struct {
	ProblemType float64 `json:"problem_type"`
	OrderValue  float64 `json:"order_value"`
	OrderStatus float64 `json:"order_status"`
	Reason      float64 `json:"reason"`
	Policy      float64 `json:"policy"`

	// RuleStrength is reported for transparency and does not enter Total.
	RuleStrength float64 `json:"rule_strength,omitempty"`
}

// Total is the weighted sum of the components.
func (b Breakdown) Total() float64 {
	return b.ProblemType*WeightProblemType +
		b.OrderValue*WeightOrderValue +
		b.OrderStatus*WeightOrderStatus +
		b.Reason*WeightReason +
		b.Policy*WeightPolicy
}

// ComponentScore is one row of a rendered breakdown.
type ComponentScore struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Components lists the breakdown in fixed order.
func (b Breakdown) Components() []ComponentScore {
	rows := []ComponentScore{
		{Name: ProblemType, Value: b.ProblemType, Weight: WeightProblemType},
		{Name: OrderValue, Value: b.OrderValue, Weight: WeightOrderValue},
		{Name: OrderStatus, Value: b.OrderStatus, Weight: WeightOrderStatus},
		{Name: Reason, Value: b.Reason, Weight: WeightReason},
		{Name: Policy, Value: b.Policy, Weight: WeightPolicy},
	}
	for i := range rows {
		rows[i].Weighted = rows[i].Value * rows[i].Weight
	}
	return rows
}

// #endregion breakdown

// #region scorer
// Scorer maps a request onto the five components using configured lookups.
type Scorer struct {
	config Config
}

// NewScorer validates config and returns a Scorer.
func NewScorer(config Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{config: config}, nil
}

// Score computes the breakdown. The policy component is the top retrieved
// relevance, 0 when nothing was retrieved. Score is a pure function.
func (s *Scorer) Score(req refund.Request, verdicts rules.Result, retrieved []retrieval.Result) Breakdown {
	b := Breakdown{
		ProblemType: lookup(s, s.config.CategoryScores, req.Category),
		OrderValue:  s.orderValue(req.OrderValue),
		OrderStatus: lookup(s, s.config.StatusScores, req.OrderStatus),
		Reason:      lookup(s, s.config.ReasonScores, req.ReasonCode),
		Policy:      topRelevance(retrieved),
	}
	if v, ok := verdicts.Decisive(); ok {
		b.RuleStrength = v.Strength
	}
	return b
}

func lookup[K comparable](s *Scorer, table map[K]float64, key K) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return s.config.DefaultScore
}

// orderValue walks the ascending buckets; values above the last bucket get
// AboveScore. Non-finite values score as unknown.
func (s *Scorer) orderValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s.config.DefaultScore
	}
	for _, bk := range s.config.OrderValueBuckets {
		if v <= bk.Max {
			return bk.Score
		}
	}
	return s.config.OrderValueAboveScore
}

func topRelevance(retrieved []retrieval.Result) float64 {
	top := 0.0
	for _, r := range retrieved {
		if r.Relevance > top {
			top = r.Relevance
		}
	}
	return math.Min(top, 1)
}

// #endregion scorer

// #region config
// Bucket scores order values up to and including Max.
type Bucket struct {
	Max   float64 `yaml:"max"`
	Score float64 `yaml:"score"`
}

// Config holds the per-dimension lookups. Missing keys fall back to
// DefaultScore.
type Config struct {
	OrderValueBuckets    []Bucket                       `yaml:"order_value_buckets"`
	OrderValueAboveScore float64                        `yaml:"order_value_above_score"`
	StatusScores         map[refund.OrderStatus]float64 `yaml:"status_scores"`
	CategoryScores       map[refund.Category]float64    `yaml:"category_scores"`
	ReasonScores         map[refund.ReasonCode]float64  `yaml:"reason_scores"`
	DefaultScore         float64                        `yaml:"default_score"`
}

// DefaultConfig returns the bucket scheme used in production: eligibility
// falls as order value rises and as the order moves along the delivery
// lifecycle.
func DefaultConfig() Config {
	return Config{
		OrderValueBuckets: []Bucket{
			{Max: 30, Score: 0.9},
			{Max: 100, Score: 0.7},
			{Max: 300, Score: 0.5},
		},
		OrderValueAboveScore: 0.3,
		StatusScores: map[refund.OrderStatus]float64{
			refund.StatusAwaitingConfirmation: 0.95,
			refund.StatusPreparing:            0.7,
			refund.StatusOutForDelivery:       0.4,
			refund.StatusDelivered:            0.3,
			refund.StatusUnknown:              0.5,
		},
		CategoryScores: map[refund.Category]float64{
			refund.CategoryFraud:        0.9,
			refund.CategoryDelivery:     0.8,
			refund.CategoryBilling:      0.75,
			refund.CategoryRefund:       0.7,
			refund.CategoryCancellation: 0.7,
			refund.CategorySupport:      0.5,
		},
		ReasonScores: map[refund.ReasonCode]float64{
			refund.ReasonRestaurantCancelled:  1.0,
			refund.ReasonRestaurantError:      0.95,
			refund.ReasonAppError:             0.95,
			refund.ReasonCourierError:         0.9,
			refund.ReasonDuplicateCharge:      0.9,
			refund.ReasonChargedAfterCancel:   0.9,
			refund.ReasonNotReceived:          0.85,
			refund.ReasonAccountTakeover:      0.85,
			refund.ReasonUnrecognizedPurchase: 0.8,
			refund.ReasonIncomplete:           0.75,
			refund.ReasonWrongOrder:           0.75,
			refund.ReasonIncorrectAmount:      0.7,
			refund.ReasonMultipleCharges:      0.7,
			refund.ReasonPendingChargeback:    0.7,
			refund.ReasonDeliveryDelay:        0.6,
			refund.ReasonOther:                0.5,
			refund.ReasonBuyerRemorse:         0.3,
		},
		DefaultScore: 0.5,
	}
}

// lifecycle is the delivery order the status lookup must not increase along.
var lifecycle = []refund.OrderStatus{
	refund.StatusAwaitingConfirmation,
	refund.StatusPreparing,
	refund.StatusOutForDelivery,
	refund.StatusDelivered,
}

// Validate checks that every score is in [0,1], buckets ascend, and both the
// order value and lifecycle lookups are monotonically non-increasing.
func (c Config) Validate() error {
	inRange := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("scoring: %s score %v outside [0,1]", name, v)
		}
		return nil
	}
	if err := inRange("default", c.DefaultScore); err != nil {
		return err
	}
	if err := inRange("order value above", c.OrderValueAboveScore); err != nil {
		return err
	}
	prev := Bucket{Max: math.Inf(-1), Score: 1}
	for i, bk := range c.OrderValueBuckets {
		if err := inRange(fmt.Sprintf("order value bucket %d", i), bk.Score); err != nil {
			return err
		}
		if bk.Max <= prev.Max {
			return fmt.Errorf("scoring: order value bucket %d max %v not ascending", i, bk.Max)
		}
		if bk.Score > prev.Score {
			return fmt.Errorf("scoring: order value bucket %d score %v rises with value", i, bk.Score)
		}
		prev = bk
	}
	if len(c.OrderValueBuckets) > 0 && c.OrderValueAboveScore > prev.Score {
		return fmt.Errorf("scoring: order value above score %v rises with value", c.OrderValueAboveScore)
	}

	for k, v := range c.StatusScores {
		if !k.Valid() {
			return fmt.Errorf("scoring: unknown order status %q", k)
		}
		if err := inRange(string(k), v); err != nil {
			return err
		}
	}
	last := math.Inf(1)
	for _, st := range lifecycle {
		v, ok := c.StatusScores[st]
		if !ok {
			continue
		}
		if v > last {
			return fmt.Errorf("scoring: status %s score %v rises along the delivery lifecycle", st, v)
		}
		last = v
	}
	for k, v := range c.CategoryScores {
		if !k.Valid() {
			return fmt.Errorf("scoring: unknown category %q", k)
		}
		if err := inRange(string(k), v); err != nil {
			return err
		}
	}
	for k, v := range c.ReasonScores {
		if !k.Valid() {
			return fmt.Errorf("scoring: unknown reason code %q", k)
		}
		if err := inRange(string(k), v); err != nil {
			return err
		}
	}
	return nil
}

// #endregion config

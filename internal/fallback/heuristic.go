package fallback

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

// #region heuristic
// Heuristic is the local keyword classifier used when no backend is
// configured or the configured one fails. It never errors. Confidence is
// capped since it has no generative reasoning.
type Heuristic struct {
	maxConfidence float64
	positive      []string
	negative      []string
}

var (
	positiveCues = []string{
		"erro", "errado", "incorreto", "problema", "falha", "defeito",
		"cancelou", "cancelado", "nao chegou", "nao recebi", "faltando",
		"duplicado", "duplicada", "fraude", "invadido", "hackeado",
		"cobranca indevida", "cobrado errado", "atrasado", "demora",
	}
	negativeCues = []string{
		"mudei de ideia", "desisti", "nao quero mais", "arrependimento",
		"ja comi", "ja recebi", "entreguei errado o endereco",
	}
	// policy answer phrasing that signals eligibility either way
	policyApprovalCues  = []string{"reembolso total", "reembolso aprovado", "estorno automatico", "aprovado"}
	policyRejectionCues = []string{"nao e elegivel", "nao elegivel"}
)

// NewHeuristic returns a heuristic whose confidence never exceeds maxConfidence.
func NewHeuristic(maxConfidence float64) *Heuristic {
	return &Heuristic{maxConfidence: maxConfidence, positive: positiveCues, negative: negativeCues}
}

func (h *Heuristic) Name() string { return "heuristic" }

// Analyze never returns an error.
func (h *Heuristic) Analyze(_ context.Context, p Prompt) (Suggestion, error) {
	return h.classify(p.Request, p.Policies), nil
}

func (h *Heuristic) classify(req refund.Request, policies []retrieval.Result) Suggestion {
	s := h.byContext(req)
	if s.Verdict == "" {
		s = h.byCues(req, policies)
	}
	s.Model = h.Name()
	s.Confidence = math.Min(s.Confidence, h.maxConfidence)
	return s
}

// byContext handles the cases whose structured fields already settle the
// direction.
func (h *Heuristic) byContext(req refund.Request) Suggestion {
	switch {
	case req.Category == refund.CategoryFraud:
		return Suggestion{Verdict: refund.VerdictManualReview, Confidence: 0.9,
			Explanation: "Casos de fraude requerem análise manual especializada."}
	case req.ReasonCode == refund.ReasonRestaurantError || req.ReasonCode == refund.ReasonAppError ||
		req.ReasonCode == refund.ReasonRestaurantCancelled:
		return Suggestion{Verdict: refund.VerdictApprove, Confidence: 0.85,
			Explanation: fmt.Sprintf("Erro operacional (%s) detectado. Elegível para reembolso.", req.ReasonCode)}
	case req.ReasonCode == refund.ReasonBuyerRemorse &&
		(req.OrderStatus == refund.StatusOutForDelivery || req.OrderStatus == refund.StatusDelivered):
		return Suggestion{Verdict: refund.VerdictReject, Confidence: 0.9,
			Explanation: "Arrependimento após saída para entrega não é elegível."}
	}
	return Suggestion{}
}

// byCues counts indicator phrases in the customer's text and in the answers
// of the retrieved policies, then maps the balance to a verdict.
func (h *Heuristic) byCues(req refund.Request, policies []retrieval.Result) Suggestion {
	text := " " + retrieval.Normalize(req.FreeText) + " "
	pos := countPhrases(text, h.positive)
	neg := countPhrases(text, h.negative)
	for _, p := range policies {
		answer := " " + retrieval.Normalize(p.Document.Answer) + " "
		if countPhrases(answer, policyRejectionCues) > 0 {
			neg++
		} else if countPhrases(answer, policyApprovalCues) > 0 {
			pos++
		}
	}

	balance := float64(pos-neg) / math.Max(1, float64(pos+neg))
	switch {
	case balance > 0.3:
		return Suggestion{Verdict: refund.VerdictApprove, Confidence: 0.6 + balance*0.2,
			Explanation: fmt.Sprintf("Análise local indica elegibilidade (indicadores +%d/-%d).", pos, neg)}
	case balance < -0.3:
		return Suggestion{Verdict: refund.VerdictReject, Confidence: 0.6 + math.Abs(balance)*0.2,
			Explanation: fmt.Sprintf("Análise local indica não elegibilidade (indicadores +%d/-%d).", pos, neg)}
	default:
		return Suggestion{Verdict: refund.VerdictEscalate, Confidence: 0.5,
			Explanation: "Caso requer análise humana para decisão."}
	}
}

// countPhrases counts phrases found as whole words in padded text.
func countPhrases(padded string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			n++
		}
	}
	return n
}

// #endregion heuristic

package refund

// Verdict is a final refund decision.
type Verdict string

const (
	VerdictApprove      Verdict = "APPROVE"
	VerdictReject       Verdict = "REJECT"
	VerdictEscalate     Verdict = "ESCALATE"
	VerdictManualReview Verdict = "MANUAL_REVIEW"
)

var verdicts = newEnumTable("verdict", []enumEntry[Verdict]{
	{VerdictApprove, "APROVAR"},
	{VerdictReject, "REJEITAR"},
	{VerdictEscalate, "ESCALAR"},
	{VerdictManualReview, "ANALISE_MANUAL"},
})

func (v Verdict) Valid() bool    { return verdicts.valid(v) }
func (v Verdict) Label() string  { return verdicts.label(v) }
func (v Verdict) String() string { return string(v) }

// ParseVerdict accepts the English codes and the Portuguese labels generative
// backends tend to answer with ("APROVAR", "ANALISE_MANUAL", ...).
func ParseVerdict(s string) (Verdict, error) { return verdicts.parse(s) }

// Verdicts lists every verdict in declaration order.
func Verdicts() []Verdict { return verdicts.values() }

// ConfidenceLabel is the coarse confidence bucket shown to operators.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "HIGH"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceLow    ConfidenceLabel = "LOW"
)

var confidenceLabels = newEnumTable("confidence label", []enumEntry[ConfidenceLabel]{
	{ConfidenceHigh, "Alta"},
	{ConfidenceMedium, "Média"},
	{ConfidenceLow, "Baixa"},
})

func (c ConfidenceLabel) Valid() bool   { return confidenceLabels.valid(c) }
func (c ConfidenceLabel) Label() string { return confidenceLabels.label(c) }

// LabelFor buckets a numeric confidence: >= 0.8 high, >= 0.5 medium.
func LabelFor(confidence float64) ConfidenceLabel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SourceMethod records which path produced a decision.
type SourceMethod string

const (
	SourceRule     SourceMethod = "rule"
	SourceFallback SourceMethod = "fallback"
)

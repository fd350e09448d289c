package fallback

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region parse
// ParseResponse extracts a suggestion from generated text. The answer is the
// span from the first '{' to the last '}', decoded as JSON with either the
// Portuguese keys (decisao, confianca, justificativa) or English ones
// (verdict, confidence, explanation).
func ParseResponse(text string) (Suggestion, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Suggestion{}, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return suggestionFromFields(fields)
}

func suggestionFromFields(fields map[string]any) (Suggestion, error) {
	verdictRaw, _ := firstOf(fields, "decisao", "verdict").(string)
	if verdictRaw == "" {
		return Suggestion{}, fmt.Errorf("%w: missing verdict", ErrMalformedResponse)
	}
	verdict, err := refund.ParseVerdict(verdictRaw)
	if err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	conf, err := toConfidence(firstOf(fields, "confianca", "confidence"))
	if err != nil {
		return Suggestion{}, err
	}
	explanation, _ := firstOf(fields, "justificativa", "explanation").(string)
	model, _ := fields["model"].(string)

	s := Suggestion{Verdict: verdict, Confidence: conf, Explanation: explanation, Model: model}
	if err := s.validate(); err != nil {
		return Suggestion{}, err
	}
	return s, nil
}

func firstOf(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toConfidence(v any) (float64, error) {
	switch c := v.(type) {
	case float64:
		return c, nil
	case string:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(c), ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: confidence %q", ErrMalformedResponse, c)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: missing confidence", ErrMalformedResponse)
	}
	return 0, fmt.Errorf("%w: confidence of type %T", ErrMalformedResponse, v)
}

// #endregion parse

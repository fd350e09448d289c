package retrieval

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region config
// Config holds ranking parameters for policy retrieval.
type Config struct {
	TopK          int                 `yaml:"top_k"`
	MinRelevance  float64             `yaml:"min_relevance"`  // results below this are dropped
	CategoryBoost float64             `yaml:"category_boost"` // multiplier when the document category matches
	ReasonBoost   float64             `yaml:"reason_boost"`   // added when the document covers the reason code
	SynonymWeight float64             `yaml:"synonym_weight"` // query weight of an expanded synonym
	MaxSynonyms   int                 `yaml:"max_synonyms"`   // expansions per token
	Synonyms      map[string][]string `yaml:"synonyms"`       // nil means DefaultSynonyms
}

// DefaultConfig returns the ranking defaults.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		MinRelevance:  0,
		CategoryBoost: 1.2,
		ReasonBoost:   0.3,
		SynonymWeight: 0.5,
		MaxSynonyms:   5,
	}
}

// Validate reports configuration values that cannot rank anything.
func (c Config) Validate() error {
	switch {
	case c.TopK <= 0:
		return fmt.Errorf("retrieval: top_k must be > 0, got %d", c.TopK)
	case c.MinRelevance < 0 || c.MinRelevance > 1:
		return fmt.Errorf("retrieval: min_relevance must be in [0,1], got %v", c.MinRelevance)
	case c.CategoryBoost < 1:
		return fmt.Errorf("retrieval: category_boost must be >= 1, got %v", c.CategoryBoost)
	case c.ReasonBoost < 0:
		return fmt.Errorf("retrieval: reason_boost must be >= 0, got %v", c.ReasonBoost)
	case c.SynonymWeight < 0 || c.SynonymWeight > 1:
		return fmt.Errorf("retrieval: synonym_weight must be in [0,1], got %v", c.SynonymWeight)
	case c.MaxSynonyms < 0:
		return fmt.Errorf("retrieval: max_synonyms must be >= 0, got %d", c.MaxSynonyms)
	}
	return nil
}

// #endregion config

// #region types
// Fields are the structured request attributes that boost ranking.
type Fields struct {
	Category refund.Category
	Reason   refund.ReasonCode
}

// Result is one retrieved policy with its relevance in [0,1].
type Result struct {
	Document  corpus.PolicyDocument
	Relevance float64
}

// PolicyIDs returns the ids of results in rank order.
func PolicyIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Document.ID
	}
	return ids
}

// #endregion types

// #region retriever
// Retriever ranks policy documents for a query. A Retriever holds no
// per-request state and may be shared between goroutines.
type Retriever struct {
	index    *Index
	config   Config
	synonyms SynonymTable
	logger   *slog.Logger
}

// NewRetriever creates a Retriever over idx. idx may be nil, in which case
// every call reports ErrIndexUnavailable.
func NewRetriever(idx *Index, config Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	raw := config.Synonyms
	if raw == nil {
		raw = DefaultSynonyms()
	}
	return &Retriever{
		index:    idx,
		config:   config,
		synonyms: NewSynonymTable(raw, config.MaxSynonyms),
		logger:   logger.With("component", "retrieval"),
	}
}

// Query builds the retrieval query for a request: the customer's text plus
// the reason code and category spelled as words.
func Query(req refund.Request) string {
	return strings.Join([]string{req.FreeText, req.ReasonCode.Terms(), string(req.Category)}, " ")
}

// RetrieveFor runs Retrieve with the request's query and fields.
func (r *Retriever) RetrieveFor(req refund.Request) ([]Result, error) {
	return r.Retrieve(Query(req), Fields{Category: req.Category, Reason: req.ReasonCode}, 0)
}

// #endregion retriever

// #region retrieve
// Retrieve returns at most topK documents (config TopK when topK <= 0) in
// descending relevance. Relevance is the cosine similarity between the
// synonym-expanded query and the document, multiplied by CategoryBoost when
// the categories match, plus ReasonBoost when the document covers the reason,
// clamped to 1. Documents sharing no term with the query are never returned,
// so an empty result is a valid answer. Ties keep corpus order.
func (r *Retriever) Retrieve(query string, fields Fields, topK int) ([]Result, error) {
	if r == nil || r.index.Len() == 0 {
		return nil, ErrIndexUnavailable
	}
	if topK <= 0 {
		topK = r.config.TopK
	}
	if topK <= 0 {
		topK = DefaultConfig().TopK
	}

	vec, norm := r.queryVector(Tokenize(query))
	if norm == 0 {
		r.logger.Debug("query has no indexed terms", "query", query)
		return nil, nil
	}

	var results []Result
	for i, d := range r.index.docs {
		cos := r.index.cosine(vec, norm, i)
		if cos <= 0 {
			continue
		}
		rel := cos
		if fields.Category != "" && d.doc.Category == fields.Category {
			rel *= r.config.CategoryBoost
		}
		if fields.Reason != "" && d.doc.Covers(fields.Reason) {
			rel += r.config.ReasonBoost
		}
		rel = math.Min(rel, 1)
		if rel < r.config.MinRelevance {
			continue
		}
		results = append(results, Result{Document: d.doc, Relevance: rel})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Relevance > results[b].Relevance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// queryVector weighs original tokens 1 per occurrence and each synonym
// SynonymWeight once, then applies idf. Terms the index never saw are dropped.
func (r *Retriever) queryVector(tokens []string) (map[string]float64, float64) {
	raw := make(map[string]float64)
	for _, t := range tokens {
		raw[t]++
	}
	original := make(map[string]bool, len(raw))
	for t := range raw {
		original[t] = true
	}
	for _, t := range tokens {
		for _, syn := range r.synonyms.Expand(t) {
			if original[syn] {
				continue
			}
			raw[syn] = r.config.SynonymWeight
		}
	}

	vec := make(map[string]float64, len(raw))
	var sq float64
	for t, w := range raw {
		idf, ok := r.index.idf[t]
		if !ok || w == 0 {
			continue
		}
		vec[t] = w * idf
		sq += vec[t] * vec[t]
	}
	return vec, math.Sqrt(sq)
}

// #endregion retrieve

// #region format
// FormatContext renders results as numbered policy excerpts for a generative
// prompt. Answers longer than maxAnswer runes are truncated (0 keeps all).
func FormatContext(results []Result, maxAnswer int) string {
	if len(results) == 0 {
		return "Nenhuma política relevante encontrada."
	}
	var b strings.Builder
	for i, r := range results {
		answer := r.Document.Answer
		if maxAnswer > 0 {
			if runes := []rune(answer); len(runes) > maxAnswer {
				answer = string(runes[:maxAnswer]) + "..."
			}
		}
		fmt.Fprintf(&b, "[%d] %s (%s, relevância %.2f)\n", i+1, r.Document.ID, r.Document.Category, r.Relevance)
		if r.Document.Question != "" {
			fmt.Fprintf(&b, "    P: %s\n", r.Document.Question)
		}
		fmt.Fprintf(&b, "    R: %s\n", answer)
	}
	return b.String()
}

// #endregion format

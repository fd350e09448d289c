package retrieval

import (
	"errors"
	"fmt"
	"math"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
)

// ErrIndexUnavailable is returned when there is no corpus to search, either
// because it failed to load or because no document had indexable text.
var ErrIndexUnavailable = errors.New("policy index unavailable")

// #region index
// Index holds the TF-IDF weights of every indexable document, computed once
// at build time. It is read-only afterwards and safe for concurrent use.
type Index struct {
	docs []indexedDoc
	idf  map[string]float64
}

type indexedDoc struct {
	doc     corpus.PolicyDocument
	weights map[string]float64
	norm    float64
}

// BuildIndex tokenizes every document and computes term weights as
// tf(t,d) * idf(t), with tf normalized by document length and
// idf(t) = ln((1+N)/(1+df(t))) + 1 so that no shared term weighs zero.
func BuildIndex(c *corpus.Corpus) (*Index, error) {
	if c.Len() == 0 {
		return nil, fmt.Errorf("build index: %w: empty corpus", ErrIndexUnavailable)
	}

	type tokenized struct {
		doc    corpus.PolicyDocument
		counts map[string]int
		total  int
	}
	var parsed []tokenized
	df := make(map[string]int)
	for _, doc := range c.Documents() {
		tokens := Tokenize(doc.Text())
		if len(tokens) == 0 {
			continue
		}
		counts := make(map[string]int)
		for _, t := range tokens {
			counts[t]++
		}
		for t := range counts {
			df[t]++
		}
		parsed = append(parsed, tokenized{doc: doc, counts: counts, total: len(tokens)})
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("build index: %w: no indexable text", ErrIndexUnavailable)
	}

	n := float64(len(parsed))
	idx := &Index{idf: make(map[string]float64, len(df))}
	for t, f := range df {
		idx.idf[t] = math.Log((1+n)/(1+float64(f))) + 1
	}
	for _, p := range parsed {
		weights := make(map[string]float64, len(p.counts))
		var sq float64
		for t, cnt := range p.counts {
			w := float64(cnt) / float64(p.total) * idx.idf[t]
			weights[t] = w
			sq += w * w
		}
		idx.docs = append(idx.docs, indexedDoc{doc: p.doc, weights: weights, norm: math.Sqrt(sq)})
	}
	return idx, nil
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// cosine scores a weighted query vector against document i.
func (idx *Index) cosine(query map[string]float64, queryNorm float64, i int) float64 {
	d := idx.docs[i]
	if queryNorm == 0 || d.norm == 0 {
		return 0
	}
	var dot float64
	for t, qw := range query {
		dot += qw * d.weights[t]
	}
	return dot / (queryNorm * d.norm)
}

// #endregion index

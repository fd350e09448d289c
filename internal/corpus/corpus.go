package corpus

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

//go:embed policies.csv
var defaultKnowledgeBase []byte

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("knowledge base header missing column")

// #region policy-document
// PolicyDocument is one knowledge base entry. Documents are created at load
// time and never mutated.
type PolicyDocument struct {
	ID         string
	Category   refund.Category
	Reasons    []refund.ReasonCode // reason codes the policy covers, may be empty
	Question   string
	Answer     string
	Confidence float64
}

// Text is the indexed body of the document.
func (d PolicyDocument) Text() string {
	return string(d.Category) + " " + d.Question + " " + d.Answer
}

// Covers reports whether the document lists reason among the codes it covers.
func (d PolicyDocument) Covers(reason refund.ReasonCode) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// #endregion policy-document

// #region corpus
// Corpus is an immutable, insertion-ordered snapshot of the knowledge base.
// It is safe for concurrent reads.
type Corpus struct {
	docs []PolicyDocument
	byID map[string]int
}

// New builds a corpus from documents in order. Later duplicates of an id are
// dropped.
func New(docs []PolicyDocument) *Corpus {
	c := &Corpus{byID: make(map[string]int, len(docs))}
	for _, d := range docs {
		if _, dup := c.byID[d.ID]; dup {
			continue
		}
		c.byID[d.ID] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	return c
}

// Len returns the number of documents. A nil corpus has none.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.docs)
}

// Documents returns a copy of the documents in insertion order.
func (c *Corpus) Documents() []PolicyDocument {
	if c == nil {
		return nil
	}
	out := make([]PolicyDocument, len(c.docs))
	copy(out, c.docs)
	return out
}

func (c *Corpus) Get(id string) (PolicyDocument, bool) {
	if c == nil {
		return PolicyDocument{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return PolicyDocument{}, false
	}
	return c.docs[i], true
}

// #endregion corpus

// #region load
var requiredColumns = []string{"source", "category", "question", "answer"}

// columnAliases maps the Portuguese headers of older knowledge base exports.
var columnAliases = map[string]string{
	"fonte":     "source",
	"categoria": "category",
	"motivos":   "reasons",
	"pergunta":  "question",
	"resposta":  "answer",
	"confianca": "confidence",
	"confiança": "confidence",
}

// Load parses a knowledge base CSV. The header must name at least source,
// category, question and answer (Portuguese headers are accepted); reasons
// (pipe separated reason codes) and confidence are optional. Malformed rows
// are skipped with a warning.
func Load(r io.Reader, logger *slog.Logger) (*Corpus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "corpus")

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read knowledge base header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var docs []PolicyDocument
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Warn("skipping unreadable knowledge base row", "line", parseErr.Line, "error", err)
				continue
			}
			return nil, fmt.Errorf("read knowledge base: %w", err)
		}
		line, _ := reader.FieldPos(0)

		doc, err := parseRow(record, cols)
		if err != nil {
			logger.Warn("skipping malformed knowledge base row", "line", line, "error", err)
			continue
		}
		if seen[doc.ID] {
			logger.Warn("skipping duplicate policy id", "line", line, "policy_id", doc.ID)
			continue
		}
		seen[doc.ID] = true
		docs = append(docs, doc)
	}

	logger.Info("knowledge base loaded", "documents", len(docs))
	return New(docs), nil
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string, logger *slog.Logger) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer f.Close()
	return Load(f, logger)
}

// Default returns the knowledge base compiled into the binary.
func Default(logger *slog.Logger) (*Corpus, error) {
	return Load(bytes.NewReader(defaultKnowledgeBase), logger)
}

func parseRow(record []string, cols map[string]int) (PolicyDocument, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	doc := PolicyDocument{
		ID:         field("source"),
		Question:   field("question"),
		Answer:     field("answer"),
		Confidence: 1.0,
	}
	if doc.ID == "" {
		return doc, errors.New("empty source")
	}
	if doc.Answer == "" && doc.Question == "" {
		return doc, errors.New("empty question and answer")
	}

	cat, err := refund.ParseCategory(field("category"))
	if err != nil {
		return doc, err
	}
	doc.Category = cat

	if raw := field("reasons"); raw != "" {
		for _, part := range strings.Split(raw, "|") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			reason, err := refund.ParseReasonCode(part)
			if err != nil {
				return doc, err
			}
			doc.Reasons = append(doc.Reasons, reason)
		}
	}

	if raw := field("confidence"); raw != "" {
		conf, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			return doc, fmt.Errorf("confidence %q: %w", raw, err)
		}
		if math.IsNaN(conf) || conf < 0 || conf > 1 {
			return doc, fmt.Errorf("confidence %v outside [0,1]", conf)
		}
		doc.Confidence = conf
	}
	return doc, nil
}

// #endregion load

package retrieval

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

// #region helpers
func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func defaultRetriever(t *testing.T) *Retriever {
	t.Helper()
	c, err := corpus.Default(quiet())
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	idx, err := BuildIndex(c)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return NewRetriever(idx, DefaultConfig(), quiet())
}

func retrieverOver(t *testing.T, docs ...corpus.PolicyDocument) *Retriever {
	t.Helper()
	idx, err := BuildIndex(corpus.New(docs))
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return NewRetriever(idx, DefaultConfig(), quiet())
}

// #endregion helpers

// #region tokenize-tests
func TestTokenize_FoldsAccentsAndDropsStopwords(t *testing.T) {
	got := Tokenize("Não recebi a cobrança, é sério!")
	want := []string{"recebi", "cobranca", "serio"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokenize_KeepsRepeats(t *testing.T) {
	got := Tokenize("pedido pedido atrasado")
	if len(got) != 3 {
		t.Errorf("expected repeats kept, got %v", got)
	}
}

func TestTokenize_Empty(t *testing.T) {
	if got := Tokenize("  , . ! "); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
}

// #endregion tokenize-tests

// #region synonym-tests
func TestSynonymTable_Bidirectional(t *testing.T) {
	table := NewSynonymTable(DefaultSynonyms(), 0)
	if !contains(table.Expand("demora"), "atraso") {
		t.Errorf("expected demora to expand to atraso, got %v", table.Expand("demora"))
	}
	if !contains(table.Expand("atraso"), "devagar") {
		t.Errorf("expected atraso to expand to devagar, got %v", table.Expand("atraso"))
	}
	if !contains(table.Expand("devolucao"), "reembolso") {
		t.Errorf("expected accent folded synonym, got %v", table.Expand("devolucao"))
	}
}

func TestSynonymTable_DefaultBoundKeepsWholeGroup(t *testing.T) {
	table := NewSynonymTable(DefaultSynonyms(), DefaultConfig().MaxSynonyms)
	got := table.Expand("atraso")
	for _, want := range []string{"demora", "lento", "devagar"} {
		if !contains(got, want) {
			t.Errorf("expected atraso to expand to %s, got %v", want, got)
		}
	}
}

func TestSynonymTable_Bounded(t *testing.T) {
	table := NewSynonymTable(DefaultSynonyms(), 2)
	if got := table.Expand("reembolso"); len(got) != 2 {
		t.Errorf("expected 2 expansions, got %v", got)
	}
}

func TestSynonymTable_SkipsMultiWordEntries(t *testing.T) {
	table := NewSynonymTable(map[string][]string{"duplicado": {"duas vezes", "dobrado"}}, 0)
	if got := table.Expand("duplicado"); !reflect.DeepEqual(got, []string{"dobrado"}) {
		t.Errorf("expected [dobrado], got %v", got)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// #endregion synonym-tests

// #region index-tests
func TestBuildIndex_EmptyCorpus(t *testing.T) {
	_, err := BuildIndex(corpus.New(nil))
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	_, err = BuildIndex(nil)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable for nil corpus, got %v", err)
	}
}

func TestBuildIndex_SkipsDocumentsWithoutTerms(t *testing.T) {
	idx, err := BuildIndex(corpus.New([]corpus.PolicyDocument{
		{ID: "a", Question: "?", Answer: "!"},
		{ID: "b", Category: refund.CategoryDelivery, Answer: "pedido extraviado"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("expected 1 indexed document, got %d", idx.Len())
	}
}

// #endregion index-tests

// #region retrieve-tests
func TestRetrieve_RestaurantCancellation(t *testing.T) {
	r := defaultRetriever(t)
	req := refund.Request{
		Category:    refund.CategoryCancellation,
		OrderStatus: refund.StatusAwaitingConfirmation,
		ReasonCode:  refund.ReasonRestaurantCancelled,
		FreeText:    "o restaurante cancelou meu pedido",
	}
	results, err := r.RetrieveFor(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !contains(PolicyIDs(results), "POL-2.1") {
		t.Fatalf("expected POL-2.1 among %v", PolicyIDs(results))
	}
	if !results[0].Document.Covers(refund.ReasonRestaurantCancelled) {
		t.Errorf("top result %s does not cover the reason", results[0].Document.ID)
	}
}

func TestRetrieve_SortedClampedAndBounded(t *testing.T) {
	r := defaultRetriever(t)
	results, err := r.Retrieve("reembolso pedido cancelamento entrega cobrança", Fields{Category: refund.CategoryDelivery}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) == 0 || len(results) > 3 {
		t.Fatalf("expected 1..3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Relevance <= 0 || res.Relevance > 1 {
			t.Errorf("relevance %v outside (0,1]", res.Relevance)
		}
		if i > 0 && res.Relevance > results[i-1].Relevance {
			t.Errorf("results not sorted at %d", i)
		}
	}
}

func TestRetrieve_NoOverlapReturnsEmpty(t *testing.T) {
	r := defaultRetriever(t)
	results, err := r.Retrieve("xyzzy qwerty zork", Fields{}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", PolicyIDs(results))
	}
}

func TestRetrieve_NilIndex(t *testing.T) {
	r := NewRetriever(nil, DefaultConfig(), quiet())
	if _, err := r.Retrieve("pedido", Fields{}, 5); !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	var nilRetriever *Retriever
	if _, err := nilRetriever.Retrieve("pedido", Fields{}, 5); !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable from nil retriever, got %v", err)
	}
}

func TestRetrieve_TiesKeepCorpusOrder(t *testing.T) {
	r := retrieverOver(t,
		corpus.PolicyDocument{ID: "first", Category: refund.CategoryDelivery, Answer: "pedido extraviado"},
		corpus.PolicyDocument{ID: "second", Category: refund.CategoryDelivery, Answer: "pedido extraviado"},
		corpus.PolicyDocument{ID: "other", Category: refund.CategoryBilling, Answer: "cobranca indevida"},
	)
	results, err := r.Retrieve("extraviado", Fields{}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := PolicyIDs(results); !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("expected [first second], got %v", got)
	}
}

func TestRetrieve_SynonymExpansionMatches(t *testing.T) {
	r := retrieverOver(t,
		corpus.PolicyDocument{ID: "delay", Category: refund.CategoryRefund, Answer: "atraso compensado"},
		corpus.PolicyDocument{ID: "billing", Category: refund.CategoryBilling, Answer: "cobranca indevida"},
	)
	results, err := r.Retrieve("demorou demais", Fields{}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := PolicyIDs(results); !reflect.DeepEqual(got, []string{"delay"}) {
		t.Errorf("expected [delay], got %v", got)
	}
}

func TestRetrieve_CategoryAndReasonBoost(t *testing.T) {
	r := retrieverOver(t,
		corpus.PolicyDocument{ID: "plain", Category: refund.CategorySupport, Answer: "pedido analisado"},
		corpus.PolicyDocument{ID: "boosted", Category: refund.CategoryDelivery, Reasons: []refund.ReasonCode{refund.ReasonNotReceived}, Answer: "pedido analisado"},
	)
	results, err := r.Retrieve("pedido analisado", Fields{Category: refund.CategoryDelivery, Reason: refund.ReasonNotReceived}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Document.ID != "boosted" {
		t.Fatalf("expected boosted first, got %v", PolicyIDs(results))
	}
	if results[0].Relevance != 1 {
		t.Errorf("expected boosted relevance clamped to 1, got %v", results[0].Relevance)
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	r := defaultRetriever(t)
	fields := Fields{Category: refund.CategoryFraud, Reason: refund.ReasonAccountTakeover}
	a, _ := r.Retrieve("minha conta foi invadida", fields, 5)
	b, _ := r.Retrieve("minha conta foi invadida", fields, 5)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("retrieval is not deterministic")
	}
}

// #endregion retrieve-tests

// #region config-tests
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TopK != 5 || cfg.CategoryBoost != 1.2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.TopK = 0 },
		func(c *Config) { c.CategoryBoost = 0.5 },
		func(c *Config) { c.MinRelevance = 2 },
		func(c *Config) { c.MaxSynonyms = -1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

// #endregion config-tests

// #region format-tests
func TestFormatContext(t *testing.T) {
	if got := FormatContext(nil, 0); !strings.Contains(got, "Nenhuma") {
		t.Errorf("unexpected empty context %q", got)
	}
	out := FormatContext([]Result{{
		Document:  corpus.PolicyDocument{ID: "POL-X", Category: refund.CategorySupport, Answer: "resposta bem longa"},
		Relevance: 0.5,
	}}, 8)
	if !strings.Contains(out, "[1] POL-X") || !strings.Contains(out, "resposta...") {
		t.Errorf("unexpected context %q", out)
	}
}

// #endregion format-tests

func TestNormalize(t *testing.T) {
	if got := Normalize("  Não   CHEGOU!! "); got != "nao chegou" {
		t.Errorf("unexpected %q", got)
	}
}

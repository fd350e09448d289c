package agent

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestBuild_DecidesAndAudits(t *testing.T) {
	sink := audit.NewMemorySink()
	a, err := Build(context.Background(), config.Default(), quiet(), WithSinks(sink))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	d, err := a.Orchestrator.Decide(context.Background(), refund.Request{
		Category:       refund.CategoryCancellation,
		OrderStatus:    refund.StatusAwaitingConfirmation,
		ReasonCode:     refund.ReasonRestaurantCancelled,
		OrderValue:     45,
		ElapsedMinutes: 3,
		FreeText:       "o restaurante cancelou meu pedido",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Verdict != refund.VerdictApprove {
		t.Errorf("verdict = %s", d.Verdict)
	}
	events, err := sink.Query(context.Background(), d.CorrelationID)
	if err != nil || len(events) == 0 {
		t.Fatalf("expected audit events, got %d, %v", len(events), err)
	}
	if a.Analyzer.BackendName() != "none" {
		t.Errorf("backend = %s", a.Analyzer.BackendName())
	}
}

func TestBuild_KnowledgeBaseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.csv")
	csv := "fonte,categoria,pergunta,resposta\n" +
		"POL-X.1,cancelamento,Restaurante cancelou?,Reembolso integral quando o restaurante cancela o pedido.\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.KnowledgeBase.Path = path
	a, err := Build(context.Background(), cfg, quiet(), WithSinks())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if a.Corpus.Len() != 1 {
		t.Fatalf("expected 1 policy, got %d", a.Corpus.Len())
	}
}

func TestBuild_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.KnowledgeBase.Path = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := Build(context.Background(), cfg, quiet()); err == nil {
		t.Error("expected error for missing knowledge base")
	}

	cfg = config.Default()
	cfg.Fallback.Backend = "carrier-pigeon"
	if _, err := Build(context.Background(), cfg, quiet(), WithSinks()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

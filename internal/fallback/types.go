package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

var (
	// ErrBackendUnavailable covers unreachable backends, transport errors and
	// timeouts.
	ErrBackendUnavailable = errors.New("generative backend unavailable")
	// ErrMalformedResponse is returned when a backend answers with something
	// that is not a usable suggestion.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// #region backend
// Backend is a generative-text capability. Any implementation can be
// configured; the analyzer treats every error as a reason to degrade.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, p Prompt) (Suggestion, error)
}

// Prompt is what a backend receives: the request and the retrieved policy
// excerpts.
type Prompt struct {
	Request  refund.Request
	Policies []retrieval.Result
	Context  string // rendered policy excerpts
}

// Suggestion is a backend's proposed verdict.
type Suggestion struct {
	Verdict     refund.Verdict
	Confidence  float64
	Explanation string
	Model       string
	Backend     string // set by Chain to the member that answered
}

func (s Suggestion) validate() error {
	if !s.Verdict.Valid() {
		return fmt.Errorf("%w: verdict %q", ErrMalformedResponse, s.Verdict)
	}
	if s.Confidence != s.Confidence || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v", ErrMalformedResponse, s.Confidence)
	}
	return nil
}

// #endregion backend

// #region prompt-text
const systemPrompt = `Você é um agente especializado em análise de solicitações de reembolso do iFood.
Seu papel é analisar cada caso e fornecer uma recomendação baseada nas políticas da empresa.

POLÍTICAS PRINCIPAIS:
1. Cancelamentos antes da confirmação do restaurante: REEMBOLSO TOTAL
2. Erros do restaurante ou app: REEMBOLSO TOTAL
3. Arrependimento após saída para entrega: NÃO ELEGÍVEL
4. Pedido não recebido: REEMBOLSO após validação
5. Fraude suspeita: ANÁLISE MANUAL obrigatória

Responda SEMPRE no formato JSON:
{"decisao": "APROVAR|REJEITAR|ESCALAR|ANALISE_MANUAL", "confianca": 0.0-1.0, "justificativa": "Explicação clara da decisão"}`

// Text renders the full prompt for text-completion backends.
func (p Prompt) Text() string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nAnalise a seguinte solicitação de reembolso:\n\nRECLAMAÇÃO DO CLIENTE:\n")
	if p.Request.FreeText != "" {
		b.WriteString(p.Request.FreeText)
	} else {
		b.WriteString("(sem descrição)")
	}
	fmt.Fprintf(&b, "\n\nCONTEXTO DO PEDIDO:\n- Categoria: %s\n- Status do Pedido: %s\n- Motivo: %s\n- Valor: R$%.2f\n- Tempo decorrido: %d minutos\n",
		p.Request.Category.Label(), p.Request.OrderStatus.Label(), p.Request.ReasonCode.Label(),
		p.Request.OrderValue, p.Request.ElapsedMinutes)
	b.WriteString("\nPOLÍTICAS RELEVANTES:\n")
	b.WriteString(p.Context)
	b.WriteString("\nForneça sua análise em formato JSON.")
	return b.String()
}

// #endregion prompt-text

// #region config
// Config selects the backend and the confidence gates.
type Config struct {
	Backend             string        `yaml:"backend"`  // none | grpc | ollama
	Backends            []string      `yaml:"backends"` // preference order, overrides backend
	Timeout             time.Duration `yaml:"timeout"` // per backend attempt
	ConfidenceThreshold float64       `yaml:"confidence_threshold"` // below it the verdict becomes MANUAL_REVIEW
	HeuristicCap        float64       `yaml:"heuristic_cap"`
	MaxContextChars     int           `yaml:"max_context_chars"` // per policy answer in prompts
	GRPC                GRPCConfig    `yaml:"grpc"`
	Ollama              OllamaConfig  `yaml:"ollama"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type OllamaConfig struct {
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// Backend names accepted in Config.Backend.
const (
	BackendNone   = "none"
	BackendGRPC   = "grpc"
	BackendOllama = "ollama"
)

// DefaultConfig runs with no external backend.
func DefaultConfig() Config {
	return Config{
		Backend:             BackendNone,
		Timeout:             3 * time.Second,
		ConfidenceThreshold: 0.85,
		HeuristicCap:        0.65,
		MaxContextChars:     400,
		GRPC:                GRPCConfig{Addr: "localhost:50061"},
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			Model:       "llama3.1",
			Temperature: 0.3,
		},
	}
}

// BackendNames is the preference order: Backends when set, else Backend.
func (c Config) BackendNames() []string {
	if len(c.Backends) > 0 {
		return c.Backends
	}
	if c.Backend == "" {
		return nil
	}
	return []string{c.Backend}
}

func (c Config) Validate() error {
	seen := map[string]bool{}
	for _, name := range c.BackendNames() {
		switch name {
		case BackendNone:
		case BackendGRPC:
			if c.GRPC.Addr == "" {
				return errors.New("fallback: grpc backend needs grpc.addr")
			}
		case BackendOllama:
			if c.Ollama.URL == "" || c.Ollama.Model == "" {
				return errors.New("fallback: ollama backend needs ollama.url and ollama.model")
			}
		default:
			return fmt.Errorf("fallback: unknown backend %q", name)
		}
		if seen[name] {
			return fmt.Errorf("fallback: backend %q listed twice", name)
		}
		seen[name] = true
	}
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("fallback: timeout must be > 0, got %s", c.Timeout)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("fallback: confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	case c.HeuristicCap < 0 || c.HeuristicCap > 1:
		return fmt.Errorf("fallback: heuristic_cap must be in [0,1], got %v", c.HeuristicCap)
	}
	return nil
}

// #endregion config

package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// #region ollama
// OllamaBackend calls a local Ollama server's generate endpoint and parses
// the JSON answer out of the completion.
type OllamaBackend struct {
	config OllamaConfig
	client *http.Client
}

// NewOllamaBackend creates a backend. client nil uses http.DefaultClient;
// deadlines come from the request context.
func NewOllamaBackend(config OllamaConfig, client *http.Client) *OllamaBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaBackend{config: config, client: client}
}

func (o *OllamaBackend) Name() string { return "ollama:" + o.config.Model }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (o *OllamaBackend) Analyze(ctx context.Context, p Prompt) (Suggestion, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:   o.config.Model,
		Prompt:  p.Text(),
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": o.config.Temperature},
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("encode ollama request: %w", err)
	}

	url := strings.TrimRight(o.config.URL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Suggestion{}, fmt.Errorf("%w: ollama: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Suggestion{}, fmt.Errorf("%w: read ollama response: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Suggestion{}, fmt.Errorf("%w: ollama status %d: %s", ErrBackendUnavailable, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Suggestion{}, fmt.Errorf("%w: ollama envelope: %v", ErrMalformedResponse, err)
	}
	if out.Error != "" {
		return Suggestion{}, fmt.Errorf("%w: ollama: %s", ErrBackendUnavailable, out.Error)
	}
	s, err := ParseResponse(out.Response)
	if err != nil {
		return Suggestion{}, err
	}
	if s.Model == "" {
		s.Model = out.Model
	}
	return s, nil
}

// #endregion ollama

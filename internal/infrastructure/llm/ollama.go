package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aineus/aineus/internal/config"
	"github.com/aineus/aineus/internal/ports"
)

// OllamaClient implements ports.LLMClient against a local Ollama-style
// /api/generate endpoint.
type OllamaClient struct {
	host        string
	model       string
	temperature float64
	numPredict  int
	httpClient  *http.Client
}

var _ ports.LLMClient = (*OllamaClient)(nil)

// NewOllamaClient builds a client from configuration plus per-prompt
// overrides.
func NewOllamaClient(cfg config.OllamaConfig, overrides map[string]any) (*OllamaClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ollama client misconfigured: host missing")
	}
	return &OllamaClient{
		host:        strings.TrimSuffix(cfg.Host, "/"),
		model:       stringOverride(overrides, "model", cfg.Model),
		temperature: floatOverride(overrides, "temperature", 0.0),
		numPredict:  int(floatOverride(overrides, "num_predict", 1000)),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type ollamaPayload struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Model      string `json:"model"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

// Generate folds system instruction, content, and instruction into one
// completion prompt and runs it without streaming.
func (c *OllamaClient) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResponse, error) {
	var b strings.Builder
	if req.SystemInstruction != "" {
		b.WriteString(req.SystemInstruction)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Content)
	b.WriteString("\n\nPrompt: ")
	b.WriteString(req.Instruction)

	body, err := json.Marshal(ollamaPayload{
		Model:  c.model,
		Prompt: b.String(),
		Stream: false,
		Options: ollamaOptions{
			Temperature: c.temperature,
			NumPredict:  c.numPredict,
		},
	})
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("marshal ollama payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.GenerateResponse{}, fmt.Errorf("ollama returned %s", resp.Status)
	}

	var decoded ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("decode ollama response: %w", err)
	}

	return ports.GenerateResponse{
		Content: decoded.Response,
		Meta: map[string]any{
			"provider":    "ollama",
			"model":       decoded.Model,
			"done_reason": decoded.DoneReason,
		},
	}, nil
}

// HealthCheck probes the tags listing, which is cheap and read-only.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health: %s", resp.Status)
	}
	return nil
}

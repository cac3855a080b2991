package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aineus/aineus/internal/config"
	"github.com/aineus/aineus/internal/ports"
)

// OpenAIClient implements ports.LLMClient against OpenAI-compatible
// chat-completion APIs.
type OpenAIClient struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

var _ ports.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration plus per-prompt
// overrides (model, temperature, max_tokens).
func NewOpenAIClient(cfg config.OpenAIConfig, overrides map[string]any) (*OpenAIClient, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("openai client misconfigured: endpoint or api key missing")
	}
	return &OpenAIClient{
		endpoint:    cfg.Endpoint,
		model:       stringOverride(overrides, "model", cfg.Model),
		apiKey:      cfg.APIKey,
		temperature: floatOverride(overrides, "temperature", 0.7),
		maxTokens:   int(floatOverride(overrides, "max_tokens", 1000)),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}, nil
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate posts the instruction and content as a chat exchange and
// returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResponse, error) {
	messages := make([]map[string]string, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": fmt.Sprintf("%s\n\nPrompt: %s", req.Content, req.Instruction),
	})

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("marshal openai payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.GenerateResponse{}, fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.GenerateResponse{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return ports.GenerateResponse{}, fmt.Errorf("openai returned no choices")
	}

	return ports.GenerateResponse{
		Content: decoded.Choices[0].Message.Content,
		Meta: map[string]any{
			"provider":      "openai",
			"model":         c.model,
			"finish_reason": decoded.Choices[0].FinishReason,
		},
	}, nil
}

// HealthCheck probes the provider's model listing without mutating state.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	probe := strings.TrimSuffix(c.endpoint, "/chat/completions") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("openai health: %s", resp.Status)
	}
	return nil
}

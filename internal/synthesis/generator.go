// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Response is a Generator's raw output with token accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator produces text for a Request. Implementations own transport
// retries; Synthesize does not retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// HTTPGenerator calls an OpenAI-compatible chat completions endpoint.
type HTTPGenerator struct {
	Client  *http.Client
	Backoff httputil.Backoff
	cfg     types.AIConfig
}

// NewHTTPGenerator returns a generator for cfg.Endpoint + "/chat/completions".
func NewHTTPGenerator(cfg types.AIConfig) *HTTPGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPGenerator{
		Client:  &http.Client{Timeout: timeout},
		Backoff: httputil.DefaultBackoff(),
		cfg:     cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends the request and returns the first choice.
func (g *HTTPGenerator) Generate(ctx context.Context, r Request) (Response, error) {
	model := r.Model
	if model == "" {
		model = g.cfg.Model
	}
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.Prompt},
		},
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encoding chat request: %w", err)
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, g.Client, req, g.Backoff, g.cfg.MaxRetries)
	if err != nil {
		return Response{}, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("chat completions returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("chat response has no choices")
	}
	if out.Model == "" {
		out.Model = model
	}
	return Response{
		Text:         out.Choices[0].Message.Content,
		Model:        out.Model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

// price is USD per million tokens.
type price struct {
	input, output float64
}

// prices is keyed by model name prefix; the longest matching prefix wins.
var prices = map[string]price{
	"gpt-4o":       {2.50, 10.00},
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},
	"gpt-4.1-nano": {0.10, 0.40},
	"o4-mini":      {1.10, 4.40},
}

// Cost returns the USD cost of a call, or 0 for an unknown model.
func Cost(model string, inputTokens, outputTokens int) float64 {
	var best string
	for prefix := range prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := prices[best]
	return (float64(inputTokens)*p.input + float64(outputTokens)*p.output) / 1e6
}

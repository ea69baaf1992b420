package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/metrics"
)

const defaultHTTPTimeout = 120 * time.Second

// Groq implements domain.Reasoner against Groq's OpenAI-compatible chat API.
type Groq struct {
	apiKey       string
	apiBase      string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
	logger       *slog.Logger
}

type GroqConfig struct {
	APIKey       string
	APIBase      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Logger       *slog.Logger
}

func NewGroq(cfg GroqConfig) *Groq {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Groq{
		apiKey:       cfg.APIKey,
		apiBase:      cfg.APIBase,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		client:       SharedHTTPClient(defaultHTTPTimeout),
		logger:       cfg.Logger,
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("groq not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("groq: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("groq returned %d", resp.StatusCode)
	}
	return nil
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []groqChoice `json:"choices"`
	Usage   groqUsage    `json:"usage"`
}

type groqChoice struct {
	Message      groqMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type groqUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chat sends the conversation history plus the new prompt and returns the
// assistant reply. Transient failures are retried with backoff.
func (g *Groq) Chat(ctx context.Context, history []domain.ChatTurn, prompt string) (string, error) {
	msgs := make([]groqMessage, 0, len(history)+2)
	if g.systemPrompt != "" {
		msgs = append(msgs, groqMessage{Role: "system", Content: g.systemPrompt})
	}
	for _, turn := range history {
		msgs = append(msgs, groqMessage{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, groqMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(groqRequest{
		Model:     g.model,
		Messages:  msgs,
		MaxTokens: g.maxTokens,
		Stream:    false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	metrics.ReasonerRequests.Inc()

	resp, err := doWithRetry(ctx, g.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		return req, nil
	}, g.logger)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ReasonerLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("groq %d: %s", resp.StatusCode, string(respBody))
	}

	var out groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("groq: empty response")
	}

	g.logger.Debug("chat completed",
		"model", g.model,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out.Choices[0].Message.Content, nil
}

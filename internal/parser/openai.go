package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Groq and OpenRouter both speak the OpenAI chat-completions dialect,
// so a single client covers them. The API key is held per instance; an
// empty key makes the provider fail immediately so the ladder moves on.
type chatCompletions struct {
	name    string
	url     string
	model   string
	apiKey  string
	headers map[string]string
	client  *http.Client
}

const (
	groqURL       = "https://api.groq.com/openai/v1/chat/completions"
	groqModel     = "llama-3.1-8b-instant"
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
)

// NewGroq creates the Groq provider.
func NewGroq(apiKey string) Provider {
	return &chatCompletions{
		name:   "groq",
		url:    groqURL,
		model:  groqModel,
		apiKey: apiKey,
		client: &http.Client{},
	}
}

// NewOpenRouter creates the OpenRouter provider.
func NewOpenRouter(apiKey, model string) Provider {
	return &chatCompletions{
		name:   "openrouter",
		url:    openRouterURL,
		model:  model,
		apiKey: apiKey,
		headers: map[string]string{
			"X-Title": "PayLog",
		},
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *chatCompletions) Name() string { return c.name }

func (c *chatCompletions) Extract(ctx context.Context, rawText string, now time.Time) (*Schema, error) {
	if c.apiKey == "" {
		return nil, fail(c.name, fmt.Errorf("no API key configured"))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildExtractionPrompt(rawText, now)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fail(c.name, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fail(c.name, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fail(c.name, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(c.name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fail(c.name, fmt.Errorf("read response: %w", err))
	}

	var cr chatResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return nil, fail(c.name, fmt.Errorf("decode response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return nil, fail(c.name, fmt.Errorf("no choices in response"))
	}

	schema, err := decodeSchema(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, fail(c.name, err)
	}
	return schema, nil
}

package parser

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini extracts transactions with Google's GenAI API. It is usually
// the first rung of the provider ladder.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates the Gemini provider. The client reads its API key
// from the environment (GEMINI_API_KEY / GOOGLE_API_KEY); a missing key
// surfaces as a provider failure at call time, not here.
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Extract(ctx context.Context, rawText string, now time.Time) (*Schema, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildExtractionPrompt(rawText, now)},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fail(g.Name(), fmt.Errorf("generate content: %w", err))
	}

	text := resp.Text()
	if text == "" {
		return nil, fail(g.Name(), fmt.Errorf("empty response from model"))
	}

	schema, err := decodeSchema(text)
	if err != nil {
		return nil, fail(g.Name(), err)
	}
	return schema, nil
}

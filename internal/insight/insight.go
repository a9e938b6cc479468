// Package insight assembles analytics outputs into a payload for the
// narrative layer. The numeric results never depend on the narrative
// call: if it fails, the payload still ships without prose.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

// NarrativeGenerator turns a structured payload into free-text
// commentary. The engine treats the output as opaque prose.
type NarrativeGenerator interface {
	Summarize(ctx context.Context, payload domain.InsightPayload) (string, error)
}

const systemInstruction = "You are a financial analyst for a small multi-branch retail business. " +
	"Summarize the supplied figures in plain language for a branch owner. " +
	"Mention profitability status, break-even position, and any alerts. Keep it under 200 words."

// GeminiGenerator produces narratives through the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Summarize(ctx context.Context, payload domain.InsightPayload) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(string(encoded)), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty narrative")
	}
	return text, nil
}

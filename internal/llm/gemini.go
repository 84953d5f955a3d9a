package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiEngine is a thin wrapper around the official genai client.
type GeminiEngine struct {
	cli         *genai.Client
	model       string
	temperature float32
}

func NewGeminiEngine(ctx context.Context, apiKey, model string, temperature float64) (*GeminiEngine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiEngine{cli: cli, model: model, temperature: float32(temperature)}, nil
}

func (g *GeminiEngine) Name() string { return "Gemini:" + g.model }
func (g *GeminiEngine) Close() error { return nil }

func (g *GeminiEngine) Generate(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	txt := resp.Text()
	if strings.TrimSpace(txt) == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

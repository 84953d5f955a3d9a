package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIEngine talks to any OpenAI-compatible chat endpoint through langchaingo.
type OpenAIEngine struct {
	model       llms.Model
	name        string
	temperature float64
}

func NewOpenAIEngine(apiKey, model, baseURL string, temperature float64) (*OpenAIEngine, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return NewOpenAIEngineWithModel(m, model, temperature), nil
}

// NewOpenAIEngineWithModel wraps an existing langchaingo model.
func NewOpenAIEngineWithModel(m llms.Model, name string, temperature float64) *OpenAIEngine {
	return &OpenAIEngine{model: m, name: name, temperature: temperature}
}

func (o *OpenAIEngine) Name() string { return "OpenAI:" + o.name }
func (o *OpenAIEngine) Close() error { return nil }

func (o *OpenAIEngine) Generate(ctx context.Context, system, user string) (string, error) {
	var messages []llms.MessageContent
	if strings.TrimSpace(system) != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(user)},
	})
	resp, err := o.model.GenerateContent(ctx, messages, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Package llm wraps the text-generation backends used by the planner.
package llm

import (
	"context"
	"errors"
)

// Engine turns a system instruction and user content into raw model text.
type Engine interface {
	Name() string
	Generate(ctx context.Context, system, user string) (string, error)
	Close() error
}

var ErrEmptyResponse = errors.New("llm: empty response from model")

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderFake   = "fake"
)

type Options struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	// Hook, when set, observes every Generate call of the built engine.
	Hook Hook
}

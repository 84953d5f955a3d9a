package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// New builds the configured engine with the default middleware stack:
// the optional hook, logging, then retry for remote providers.
func New(ctx context.Context, opts Options) (Engine, error) {
	var (
		base Engine
		err  error
	)
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	switch provider {
	case "", ProviderGemini:
		base, err = NewGeminiEngine(ctx, opts.APIKey, opts.Model, opts.Temperature)
	case ProviderOpenAI:
		base, err = NewOpenAIEngine(opts.APIKey, opts.Model, opts.BaseURL, opts.Temperature)
	case ProviderFake:
		base = NewFakeEngine(FakeReply{Err: ErrEmptyResponse})
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	mws := []Middleware{WithHook(opts.Hook), WithLogging()}
	// The fake engine answers deterministically; a retry only adds latency.
	if provider != ProviderFake {
		mws = append(mws, Retry(2, time.Second))
	}
	return Wrap(base, mws...), nil
}

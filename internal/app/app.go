package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"tripplanner/internal/cache"
	"tripplanner/internal/config"
	"tripplanner/internal/llm"
	"tripplanner/internal/planning"
	"tripplanner/internal/provider"
	"tripplanner/internal/server"
	"tripplanner/internal/service"
	"tripplanner/internal/steps"
	"tripplanner/internal/tracelog"
)

const purgeEvery = 10 * time.Minute

type App struct {
	server  *server.Server
	stores  *stores
	engine  llm.Engine
	planner *service.Planner
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig assembles every collaborator of the planner from cfg.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if !strings.EqualFold(cfg.Env, "local") {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	st, err := initStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	journal, err := tracelog.NewJournal(cfg.TraceDir)
	if err != nil {
		st.close()
		return nil, err
	}

	engine, engineErr := newEngine(ctx, cfg.LLM, tracelog.ModelCalls{Journal: journal})
	if engineErr != nil {
		// Synthesis falls back without an engine; the run still completes.
		log.Printf("llm engine unavailable, plans will use the fallback itinerary: %v", engineErr)
	}

	gw := provider.NewAMapClient(cfg.AMap.APIKey, cfg.AMap.BaseURL, cfg.AMap.Timeout)
	retry := provider.DefaultRetryPolicy()
	if cfg.AMap.Attempts > 0 {
		retry.Attempts = cfg.AMap.Attempts
	}
	poi := steps.GatherConfig{Cache: st.cache, Retry: retry, TTL: cfg.Cache.POITTL}
	weather := steps.GatherConfig{Cache: st.cache, Retry: retry, TTL: cfg.Cache.WeatherTTL}

	graph, err := planning.NewTripGraph(
		steps.NewAttractions(gw, poi),
		steps.NewWeather(gw, weather),
		steps.NewLodging(gw, poi),
		steps.NewSynthesis(engine, cfg.LLM.SynthesisTimeout),
	)
	if err != nil {
		st.close()
		return nil, err
	}

	checks := st.checks()
	checks["amap"] = func(context.Context) error {
		if strings.TrimSpace(cfg.AMap.APIKey) == "" {
			return errors.New("AMAP_API_KEY is not set")
		}
		return nil
	}
	checks["llm"] = func(context.Context) error {
		if engine == nil {
			return engineErr
		}
		return nil
	}

	planner, err := service.NewPlanner(service.Deps{
		Graph:      graph,
		Store:      st.plans,
		Archive:    st.archive,
		Audit:      st.audit,
		Journal:    journal,
		Cache:      st.cache,
		Navigator:  steps.NewNavigator(gw, poi),
		RunTimeout: cfg.RunTimeout,
		Checks:     checks,
		Stats:      st.stats(),
	})
	if err != nil {
		st.close()
		return nil, err
	}

	t := cfg.ServerTimeouts()
	return &App{
		server: server.New(cfg.Port, server.NewHandlers(planner).Mux(), server.Timeouts{
			ReadHeader: t.ReadHeaderTimeout,
			Write:      t.WriteTimeout,
			Idle:       t.IdleTimeout,
			Grace:      t.ShutdownGrace,
		}),
		stores:  st,
		engine:  engine,
		planner: planner,
	}, nil
}

func newEngine(ctx context.Context, c config.LLMConfig, hook llm.Hook) (llm.Engine, error) {
	opts := llm.Options{Provider: c.Provider, Temperature: c.Temperature, Hook: hook}
	switch c.Provider {
	case llm.ProviderOpenAI:
		opts.APIKey, opts.Model, opts.BaseURL = c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIBaseURL
	case llm.ProviderGemini:
		opts.APIKey, opts.Model = c.GeminiAPIKey, c.GeminiModel
	}
	return llm.New(ctx, opts)
}

func (a *App) Planner() *service.Planner { return a.planner }

// Run serves until ctx is done or the server fails, whichever comes first.
// Background maintenance stops with it.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.stores.sqlCache != nil {
		go purgeLoop(ctx, a.stores.sqlCache)
	}
	return a.server.Run(ctx)
}

// Shutdown stops the server if it is still running and releases the engine
// and the stores.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.engine != nil {
		err = errors.Join(err, a.engine.Close())
	}
	return errors.Join(err, a.stores.close())
}

func purgeLoop(ctx context.Context, s *cache.SQLStore) {
	ticker := time.NewTicker(purgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				log.Printf("cache purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("cache purge removed %d expired entries", n)
			}
		}
	}
}

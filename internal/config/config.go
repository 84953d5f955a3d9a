package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       string        `yaml:"port"`
	Env        string        `yaml:"env"`
	TraceDir   string        `yaml:"trace_dir"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	HTTP    HTTPConfig    `yaml:"http"`
	AMap    AMapConfig    `yaml:"amap"`
	LLM     LLMConfig     `yaml:"llm"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Archive ArchiveConfig `yaml:"archive"`
}

// HTTPConfig bounds server connections. Zero values are derived from
// RunTimeout by Config.ServerTimeouts.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
}

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	// writeSlack is added to RunTimeout so a plan that uses its whole budget
	// can still be written out.
	writeSlack = 30 * time.Second
	graceSlack = 5 * time.Second
)

// ServerTimeouts resolves the effective HTTP timeouts. The write timeout never
// drops below RunTimeout plus slack; a configured shorter one is raised.
func (c *Config) ServerTimeouts() HTTPConfig {
	out := c.HTTP
	if out.ReadHeaderTimeout <= 0 {
		out.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = defaultIdleTimeout
	}
	if floor := c.RunTimeout + writeSlack; out.WriteTimeout < floor {
		out.WriteTimeout = floor
	}
	if out.ShutdownGrace <= 0 {
		out.ShutdownGrace = c.RunTimeout + graceSlack
	}
	return out
}

type AMapConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
}

type LLMConfig struct {
	Provider         string        `yaml:"provider"`
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	OpenAIModel      string        `yaml:"openai_model"`
	Temperature      float64       `yaml:"temperature"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	POITTL     time.Duration `yaml:"poi_ttl"`
	WeatherTTL time.Duration `yaml:"weather_ttl"`
	MaxEntries int           `yaml:"max_entries"`
	// Dir enables the on-disk tier when no database is configured.
	Dir string `yaml:"dir"`
}

// StoreConfig selects the SQL backend shared by the provider cache and the
// plan store. An empty DatabaseURL keeps both in memory.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	DatabaseURL   string `yaml:"database_url"`
	MemoryRecords int    `yaml:"memory_records"`
}

type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != "" && strings.TrimSpace(a.Bucket) != ""
}

func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs resolves configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. A -port flag beats everything.
func LoadArgs(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("tripplanner", flag.ContinueOnError)
	port := fs.String("port", "", "server port")
	file := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}
	cfg := defaults(env)

	path := firstNonEmpty(strings.TrimSpace(*file), strings.TrimSpace(os.Getenv("TRIP_CONFIG_FILE")))
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if *port != "" {
		cfg.Port = *port
	}
	cfg.Port = normalizePort(cfg.Port)
	cfg.LLM.Provider = resolveProvider(cfg.LLM)
	return &cfg, nil
}

func defaults(env string) Config {
	cfg := Config{
		Port:       ":8080",
		Env:        env,
		RunTimeout: 120 * time.Second,
		AMap: AMapConfig{
			Timeout:  10 * time.Second,
			Attempts: 3,
		},
		LLM: LLMConfig{
			Temperature:      0.7,
			SynthesisTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			POITTL:     2 * time.Hour,
			WeatherTTL: 30 * time.Minute,
			MaxEntries: 4096,
		},
		Store: StoreConfig{MemoryRecords: 1024},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Bucket: "trip-itineraries",
			UseSSL: true,
		},
	}
	if strings.EqualFold(env, "local") {
		localDefaults(&cfg)
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString("PORT", &cfg.Port)
	envString("RUN_TRACE_DIR", &cfg.TraceDir)

	envString("AMAP_API_KEY", &cfg.AMap.APIKey)
	envString("AMAP_BASE_URL", &cfg.AMap.BaseURL)

	envString("LLM_PROVIDER", &cfg.LLM.Provider)
	envString("GEMINI_API_KEY", &cfg.LLM.GeminiAPIKey)
	envString("GEMINI_MODEL", &cfg.LLM.GeminiModel)
	envString("OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	envString("OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	envString("OPENAI_MODEL", &cfg.LLM.OpenAIModel)

	envString("CACHE_DIR", &cfg.Cache.Dir)
	envString("DATABASE_URL", &cfg.Store.DatabaseURL)
	envString("PLAN_STORE_DRIVER", &cfg.Store.Driver)

	envString("ARCHIVE_S3_ENDPOINT", &cfg.Archive.Endpoint)
	envString("ARCHIVE_S3_REGION", &cfg.Archive.Region)
	envString("ARCHIVE_S3_ACCESS_KEY", &cfg.Archive.AccessKey)
	envString("ARCHIVE_S3_SECRET_KEY", &cfg.Archive.SecretKey)
	envString("ARCHIVE_S3_BUCKET", &cfg.Archive.Bucket)
	envString("ARCHIVE_S3_PREFIX", &cfg.Archive.Prefix)

	for _, err := range []error{
		envFloat("LLM_TEMPERATURE", &cfg.LLM.Temperature),
		envBool("CACHE_ENABLED", &cfg.Cache.Enabled),
		envDuration("CACHE_TTL_POI", &cfg.Cache.POITTL),
		envDuration("CACHE_TTL_WEATHER", &cfg.Cache.WeatherTTL),
		envDuration("RUN_TIMEOUT", &cfg.RunTimeout),
		envDuration("HTTP_READ_HEADER_TIMEOUT", &cfg.HTTP.ReadHeaderTimeout),
		envDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		envDuration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),
		envDuration("SHUTDOWN_GRACE", &cfg.HTTP.ShutdownGrace),
		envDuration("SYNTHESIS_TIMEOUT", &cfg.LLM.SynthesisTimeout),
		envInt("PROVIDER_ATTEMPTS", &cfg.AMap.Attempts),
		envBool("ARCHIVE_S3_USE_SSL", &cfg.Archive.UseSSL),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// resolveProvider picks a backend from the configured keys when none is named.
// Without any key the planner runs on the fallback itinerary alone.
func resolveProvider(c LLMConfig) string {
	if p := strings.ToLower(strings.TrimSpace(c.Provider)); p != "" {
		return p
	}
	switch {
	case strings.TrimSpace(c.GeminiAPIKey) != "":
		return "gemini"
	case strings.TrimSpace(c.OpenAIAPIKey) != "":
		return "openai"
	default:
		return "fake"
	}
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

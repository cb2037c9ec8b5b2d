package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Cache       CacheConfig     `toml:"cache"`
	Retention   RetentionConfig `toml:"retention"`
	Sources     SourcesConfig   `toml:"sources"`
	Logging     LoggingConfig   `toml:"logging"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=0,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// SchedulerConfig contains configuration for the freshness scheduler
type SchedulerConfig struct {
	Enabled           bool   `toml:"enabled"`
	TickSchedule      string `toml:"tick_schedule"`                      // Cron expression for runDueTasks (default: every minute)
	TickInterval      string `toml:"tick_interval"`                      // Logical tick length used as the backoff base (default: "1m")
	MaxAttempts       int    `toml:"max_attempts" validate:"min=1"`
	BackoffCapTicks   int    `toml:"backoff_cap_ticks" validate:"min=1"` // Backoff ceiling in ticks (default: 64)
	LockLease         string `toml:"lock_lease"`                         // Lease duration for per-key refresh locks
	FetchTimeout      string `toml:"fetch_timeout"`                      // Per-adapter fetch timeout
	RetentionSchedule string `toml:"retention_schedule"`                 // Cron for the retention purge job
	SummarySchedule   string `toml:"summary_schedule"`                   // Cron for the eager summary backfill job
}

// TickDuration returns the parsed tick interval, defaulting to one minute.
func (c SchedulerConfig) TickDuration() time.Duration {
	return parseDurationOr(c.TickInterval, time.Minute)
}

// LeaseDuration returns the parsed lock lease duration.
func (c SchedulerConfig) LeaseDuration() time.Duration {
	return parseDurationOr(c.LockLease, 5*time.Minute)
}

// FetchTimeoutDuration returns the parsed adapter fetch timeout.
func (c SchedulerConfig) FetchTimeoutDuration() time.Duration {
	return parseDurationOr(c.FetchTimeout, 30*time.Second)
}

// CacheConfig contains per-query-shape TTLs for the read-through cache
type CacheConfig struct {
	UpcomingTTL     string `toml:"upcoming_ttl"`
	TodayTTL        string `toml:"today_ttl"`
	YesterdayTTL    string `toml:"yesterday_ttl"`
	TickerTTL       string `toml:"ticker_ttl"`
	MonthTTL        string `toml:"month_ttl"`
	DailySummaryTTL string `toml:"daily_summary_ttl"`
}

func (c CacheConfig) Upcoming() time.Duration     { return parseDurationOr(c.UpcomingTTL, 30*time.Minute) }
func (c CacheConfig) Today() time.Duration        { return parseDurationOr(c.TodayTTL, 15*time.Minute) }
func (c CacheConfig) Yesterday() time.Duration    { return parseDurationOr(c.YesterdayTTL, 15*time.Minute) }
func (c CacheConfig) Ticker() time.Duration       { return parseDurationOr(c.TickerTTL, time.Hour) }
func (c CacheConfig) Month() time.Duration        { return parseDurationOr(c.MonthTTL, 6*time.Hour) }
func (c CacheConfig) DailySummary() time.Duration { return parseDurationOr(c.DailySummaryTTL, time.Hour) }

// RetentionConfig controls purging of completed events past the horizon
type RetentionConfig struct {
	Enabled bool   `toml:"enabled"`
	Horizon string `toml:"horizon"` // How long completed events are kept past event_date
}

// HorizonDuration returns the parsed retention horizon, defaulting to 30 days.
func (c RetentionConfig) HorizonDuration() time.Duration {
	return parseDurationOr(c.Horizon, 30*24*time.Hour)
}

// SourcesConfig contains per-upstream source configuration
type SourcesConfig struct {
	Eodhd   EodhdConfig   `toml:"eodhd"`
	Finnhub FinnhubConfig `toml:"finnhub"`
	Edgar   EdgarConfig   `toml:"edgar"`
	Roster  string        `toml:"roster"` // Path to the macro event roster YAML file
}

// EodhdConfig contains EODHD earnings calendar API configuration
type EodhdConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
}

// FinnhubConfig contains Finnhub economic calendar API configuration
type FinnhubConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
}

// EdgarConfig contains SEC EDGAR API configuration
type EdgarConfig struct {
	UserAgent string `toml:"user_agent"` // SEC requires a User-Agent with contact details
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second (SEC allows ~10)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// GeminiConfig contains Google Gemini API configuration for summary generation
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration for summary generation
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderNone disables summary generation
	LLMProviderNone LLMProvider = "none"
)

// LLMConfig selects the summary generation provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"omitempty,oneof=gemini claude none"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in stock-pulse.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			TickSchedule:      "*/1 * * * *", // Every minute
			TickInterval:      "1m",
			MaxAttempts:       5,
			BackoffCapTicks:   64, // 2^6 ticks
			LockLease:         "5m",
			FetchTimeout:      "30s",
			RetentionSchedule: "0 3 * * *",  // Daily purge at 03:00 UTC
			SummarySchedule:   "0 12 * * *", // Daily backfill before US market open
		},
		Cache: CacheConfig{
			UpcomingTTL:     "30m",
			TodayTTL:        "15m",
			YesterdayTTL:    "15m",
			TickerTTL:       "1h",
			MonthTTL:        "6h",
			DailySummaryTTL: "1h",
		},
		Retention: RetentionConfig{
			Enabled: true,
			Horizon: "720h", // 30 days past event_date
		},
		Sources: SourcesConfig{
			Eodhd: EodhdConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
			},
			Finnhub: FinnhubConfig{
				BaseURL:   "https://finnhub.io/api/v1",
				RateLimit: 10,
			},
			Edgar: EdgarConfig{
				UserAgent: "StockPulse/1.0 (contact@stockpulse.dev)",
				BaseURL:   "https://data.sec.gov",
				RateLimit: 8,
			},
			Roster: "./roster.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Timeout:     "1m",
			RateLimit:   "4s",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   2048,
			Timeout:     "1m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, schedule := range map[string]string{
		"scheduler.tick_schedule":      c.Scheduler.TickSchedule,
		"scheduler.retention_schedule": c.Scheduler.RetentionSchedule,
		"scheduler.summary_schedule":   c.Scheduler.SummarySchedule,
	} {
		if schedule == "" {
			continue
		}
		if err := ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STOCKPULSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("STOCKPULSE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("STOCKPULSE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("STOCKPULSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("STOCKPULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("STOCKPULSE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if key := os.Getenv("STOCKPULSE_EODHD_API_KEY"); key != "" {
		config.Sources.Eodhd.APIKey = key
	}
	if key := os.Getenv("STOCKPULSE_FINNHUB_API_KEY"); key != "" {
		config.Sources.Finnhub.APIKey = key
	}
	if ua := os.Getenv("STOCKPULSE_EDGAR_USER_AGENT"); ua != "" {
		config.Sources.Edgar.UserAgent = ua
	}

	if provider := os.Getenv("STOCKPULSE_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"STOCKPULSE_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"STOCKPULSE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"eodhd_api_key":     {"STOCKPULSE_EODHD_API_KEY"},
		"finnhub_api_key":   {"STOCKPULSE_FINNHUB_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// ValidateSchedule validates a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

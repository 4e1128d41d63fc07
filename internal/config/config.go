package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"toolrunner/internal/logging"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicVersion   = "2023-06-01"
	defaultRetryMaxRetries    = 3
	defaultRetryBaseDelay     = "300ms"
	defaultRetryMaxDelay      = "5s"
	defaultMaxIterations      = 10
	defaultMaxTokens          = 4096
	defaultLogLevel           = "warn"
	defaultLogFormat          = "text"
	defaultConfigRelativePath = ".config/toolrunner/config.toml"
	envAnthropicAPIKey        = "ANTHROPIC_API_KEY"
	envAnthropicModel         = "TOOLRUNNER_ANTHROPIC_MODEL"
	envAnthropicBaseURL       = "TOOLRUNNER_ANTHROPIC_BASE_URL"
	envAnthropicVersion       = "TOOLRUNNER_ANTHROPIC_VERSION"
	envRetryMaxRetries        = "TOOLRUNNER_ANTHROPIC_RETRY_MAX_RETRIES"
	envRetryBaseDelay         = "TOOLRUNNER_ANTHROPIC_RETRY_BASE_DELAY"
	envRetryMaxDelay          = "TOOLRUNNER_ANTHROPIC_RETRY_MAX_DELAY"
	envMaxIterations          = "TOOLRUNNER_MAX_ITERATIONS"
	envMaxTokens              = "TOOLRUNNER_MAX_TOKENS"
	envWebSearchMaxUses       = "TOOLRUNNER_WEB_SEARCH_MAX_USES"
	envStream                 = "TOOLRUNNER_STREAM"
	envAsync                  = "TOOLRUNNER_ASYNC"
	envWorkspace              = "TOOLRUNNER_WORKSPACE"
	envLogLevel               = "TOOLRUNNER_LOG_LEVEL"
	envLogFormat              = "TOOLRUNNER_LOG_FORMAT"
	envTranscriptDir          = "TOOLRUNNER_TRANSCRIPT_DIR"
)

var (
	// ErrInvalidConfig indicates malformed configuration input.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the application configuration root.
type Config struct {
	Provider     ProviderConfig     `toml:"provider"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Log          LogConfig          `toml:"log"`
	Transcript   TranscriptConfig   `toml:"transcript"`
}

// ProviderConfig configures model providers.
type ProviderConfig struct {
	Anthropic AnthropicProviderConfig `toml:"anthropic"`
}

// AnthropicProviderConfig configures Anthropic-specific runtime values.
type AnthropicProviderConfig struct {
	APIKey  string                   `toml:"api_key"`
	Model   string                   `toml:"model"`
	BaseURL string                   `toml:"base_url"`
	Version string                   `toml:"version"`
	Retry   RetryConfig              `toml:"retry"`
	Pricing map[string]PricingConfig `toml:"pricing"`
}

// RetryConfig stores retry policy as config-friendly values.
type RetryConfig struct {
	MaxRetries int    `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
	MaxDelay   string `toml:"max_delay"`
}

// PricingConfig is USD per million tokens for one model.
type PricingConfig struct {
	Input      float64 `toml:"input"`
	Output     float64 `toml:"output"`
	CacheRead  float64 `toml:"cache_read"`
	CacheWrite float64 `toml:"cache_write"`
}

// OrchestratorConfig configures the tool loop and the builtin tools.
type OrchestratorConfig struct {
	MaxIterations    int    `toml:"max_iterations"`
	MaxTokens        int    `toml:"max_tokens"`
	Stream           bool   `toml:"stream"`
	Async            bool   `toml:"async"`
	WebSearchMaxUses int    `toml:"web_search_max_uses"`
	Workspace        string `toml:"workspace"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TranscriptConfig configures where finished runs are saved. Empty disables saving.
type TranscriptConfig struct {
	Dir string `toml:"dir"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
}

// AnthropicSettings is a validated Anthropic runtime settings snapshot.
type AnthropicSettings struct {
	APIKey  string
	Model   string
	BaseURL string
	Version string
	Retry   AnthropicRetrySettings
}

// AnthropicRetrySettings is the parsed retry policy.
type AnthropicRetrySettings struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Default returns application defaults.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Anthropic: AnthropicProviderConfig{
				Model:   defaultAnthropicModel,
				Version: defaultAnthropicVersion,
				Retry: RetryConfig{
					MaxRetries: defaultRetryMaxRetries,
					BaseDelay:  defaultRetryBaseDelay,
					MaxDelay:   defaultRetryMaxDelay,
				},
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: defaultMaxIterations,
			MaxTokens:     defaultMaxTokens,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load reads config file then applies environment variable overrides.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultConfigPath()
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AnthropicSettings returns validated settings suitable for runtime wiring.
func (c Config) AnthropicSettings() (AnthropicSettings, error) {
	baseDelay, err := time.ParseDuration(strings.TrimSpace(c.Provider.Anthropic.Retry.BaseDelay))
	if err != nil {
		return AnthropicSettings{}, fmt.Errorf("%w: parse anthropic retry base_delay: %v", ErrInvalidConfig, err)
	}
	maxDelay, err := time.ParseDuration(strings.TrimSpace(c.Provider.Anthropic.Retry.MaxDelay))
	if err != nil {
		return AnthropicSettings{}, fmt.Errorf("%w: parse anthropic retry max_delay: %v", ErrInvalidConfig, err)
	}
	if c.Provider.Anthropic.Retry.MaxRetries < 0 {
		return AnthropicSettings{}, fmt.Errorf("%w: anthropic retry max_retries must be >= 0", ErrInvalidConfig)
	}

	return AnthropicSettings{
		APIKey:  strings.TrimSpace(c.Provider.Anthropic.APIKey),
		Model:   strings.TrimSpace(c.Provider.Anthropic.Model),
		BaseURL: strings.TrimSpace(c.Provider.Anthropic.BaseURL),
		Version: strings.TrimSpace(c.Provider.Anthropic.Version),
		Retry: AnthropicRetrySettings{
			MaxRetries: c.Provider.Anthropic.Retry.MaxRetries,
			BaseDelay:  baseDelay,
			MaxDelay:   maxDelay,
		},
	}, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envBinding overrides one config field from an environment variable.
// Blank values are ignored.
type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{envAnthropicModel, stringVar(func(c *Config) *string { return &c.Provider.Anthropic.Model })},
	{envAnthropicBaseURL, stringVar(func(c *Config) *string { return &c.Provider.Anthropic.BaseURL })},
	{envAnthropicVersion, stringVar(func(c *Config) *string { return &c.Provider.Anthropic.Version })},
	{envRetryMaxRetries, intVar(func(c *Config) *int { return &c.Provider.Anthropic.Retry.MaxRetries })},
	{envRetryBaseDelay, stringVar(func(c *Config) *string { return &c.Provider.Anthropic.Retry.BaseDelay })},
	{envRetryMaxDelay, stringVar(func(c *Config) *string { return &c.Provider.Anthropic.Retry.MaxDelay })},
	{envMaxIterations, intVar(func(c *Config) *int { return &c.Orchestrator.MaxIterations })},
	{envMaxTokens, intVar(func(c *Config) *int { return &c.Orchestrator.MaxTokens })},
	{envWebSearchMaxUses, intVar(func(c *Config) *int { return &c.Orchestrator.WebSearchMaxUses })},
	{envStream, boolVar(func(c *Config) *bool { return &c.Orchestrator.Stream })},
	{envAsync, boolVar(func(c *Config) *bool { return &c.Orchestrator.Async })},
	{envWorkspace, stringVar(func(c *Config) *string { return &c.Orchestrator.Workspace })},
	{envLogLevel, stringVar(func(c *Config) *string { return &c.Log.Level })},
	{envLogFormat, stringVar(func(c *Config) *string { return &c.Log.Format })},
	{envTranscriptDir, stringVar(func(c *Config) *string { return &c.Transcript.Dir })},
}

// applyEnv applies envBindings in order. The API key is taken verbatim, so an
// exported empty ANTHROPIC_API_KEY clears a key from the config file.
func applyEnv(cfg *Config) error {
	if key, ok := os.LookupEnv(envAnthropicAPIKey); ok {
		cfg.Provider.Anthropic.APIKey = key
	}
	for _, b := range envBindings {
		value := strings.TrimSpace(os.Getenv(b.key))
		if value == "" {
			continue
		}
		if err := b.apply(cfg, value); err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, b.key, err)
		}
	}
	return nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider.Anthropic.Model) == "" {
		return fmt.Errorf("%w: provider.anthropic.model is required", ErrInvalidConfig)
	}
	if _, err := cfg.AnthropicSettings(); err != nil {
		return err
	}
	if cfg.Orchestrator.MaxIterations < 0 {
		return fmt.Errorf("%w: orchestrator.max_iterations must be >= 0", ErrInvalidConfig)
	}
	if cfg.Orchestrator.MaxTokens < 0 {
		return fmt.Errorf("%w: orchestrator.max_tokens must be >= 0", ErrInvalidConfig)
	}
	if cfg.Orchestrator.WebSearchMaxUses < 0 {
		return fmt.Errorf("%w: orchestrator.web_search_max_uses must be >= 0", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigRelativePath)
}

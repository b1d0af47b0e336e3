package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Chat   ChatConfig   `yaml:"chat"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// LLMConfig holds provider and resilience settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	DoubleCheck     DoubleCheckConfig    `yaml:"double_check"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"` // "anthropic" or "openai"
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	ThinkingBudget  int           `yaml:"thinking_budget,omitempty"`
	ConnTimeout     time.Duration `yaml:"conn_timeout"`
	RespTimeout     time.Duration `yaml:"resp_timeout"`
	Pool            PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outbound provider calls.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`   // sustained requests per second
	Burst   int     `yaml:"burst"` // burst allowance
}

// DoubleCheckConfig selects the provider/model for the audit pass.
// Empty provider means "same as primary".
type DoubleCheckConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// ChatConfig holds conversation persistence settings.
type ChatConfig struct {
	DBPath       string        `yaml:"db_path"`
	MaxHistory   int           `yaml:"max_history"`
	ReapSchedule string        `yaml:"reap_schedule"` // cron expression
	ReapMaxAge   time.Duration `yaml:"reap_max_age"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.relatorai/data. Falls back to "./data" if $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".relatorai", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     2,
				Burst:   4,
			},
		},
		Chat: ChatConfig{
			DBPath:       filepath.Join(dataDir, "chats.db"),
			MaxHistory:   20,
			ReapSchedule: "0 3 * * *",
			ReapMaxAge:   30 * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads the YAML config at path, applies environment overrides and
// decrypts any "enc:" credentials through keys. A missing file yields
// Defaults() with env overrides applied.
func Load(path string, keys *KeyContext) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, keys); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides lets environment variables override provider credentials
// without touching the config file.
func applyEnvOverrides(cfg *Config) {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envName := "RELATOR_" + strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(envName); v != "" {
			p.APIKey = v
		}
	}
	if v := os.Getenv("RELATOR_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RELATOR_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
}

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, keys *KeyContext) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			if keys == nil {
				return fmt.Errorf("provider %s: encrypted api key but no passphrase supplied", cfg.LLM.Providers[i].Name)
			}
			decrypted, err := keys.Decrypt(strings.TrimPrefix(key, "enc:"))
			if err != nil {
				return fmt.Errorf("provider %s: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}
	return nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

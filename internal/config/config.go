package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds process-wide configuration for the race engine, loaded via Load().
type Config struct {
	Port           int      `mapstructure:"port"`
	DatabaseURL    string   `mapstructure:"database_url"` // "postgres://..." or a SQLite file path
	LogLevel       string   `mapstructure:"log_level"`    // debug | info | warn | error
	LogFormat      string   `mapstructure:"log_format"`   // json | text
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"`

	// Race engine defaults (§4.E, §9)
	ToolLoopLimit int `mapstructure:"tool_loop_limit"` // model tool-call loop budget per run-item

	// Telemetry subscriber (§4.D)
	TelemetryPollMs       int `mapstructure:"telemetry_poll_ms"`
	TelemetryHeartbeatSec int `mapstructure:"telemetry_heartbeat_sec"`

	// Judge pipeline defaults (§4.F)
	JudgeMaxTokens   int     `mapstructure:"judge_max_tokens"`
	JudgeTemperature float64 `mapstructure:"judge_temperature"`

	// Secret encryption (§6: *_SECRET_KEY) — AES-256-GCM key, base64-encoded, 32 raw bytes.
	SecretKey string `mapstructure:"secret_key"`

	// Auth (optional bearer-token guard on every route except health/metrics; no user/session entities in this domain)
	AuthMode      string `mapstructure:"auth_mode"` // disabled | optional | required
	AuthJWTSecret string `mapstructure:"auth_jwt_secret"`

	// Tracing (ambient observability, carried regardless of the spec's non-goals)
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingServiceName  string  `mapstructure:"tracing_service_name"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`

	// Seed data (supplemented feature: demo suite on first boot)
	SeedDemoSuite bool `mapstructure:"seed_demo_suite"`
}

// Load reads configuration from config.{yaml,yml} in the usual search paths, environment
// variables (LLMRACE_ prefix), and falls back to the defaults below.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/llmrace/")
	viper.AddConfigPath("$HOME/.llmrace")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8090)
	viper.SetDefault("database_url", "./llmrace.db")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("allowed_origins", []string{"http://localhost:5173", "http://localhost:8090"})

	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)

	viper.SetDefault("tool_loop_limit", 3)

	viper.SetDefault("telemetry_poll_ms", 400)
	viper.SetDefault("telemetry_heartbeat_sec", 10)

	viper.SetDefault("judge_max_tokens", 300)
	viper.SetDefault("judge_temperature", 0.0)

	viper.SetDefault("secret_key", "")

	viper.SetDefault("auth_mode", "disabled")
	viper.SetDefault("auth_jwt_secret", "")

	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_service_name", "llmrace-backend")
	viper.SetDefault("tracing_sampling_rate", 1.0)

	viper.SetDefault("seed_demo_suite", true)

	viper.SetEnvPrefix("LLMRACE")
	viper.AutomaticEnv()
	// The store URL is also read from plain DATABASE_URL; the prefixed name wins if both are set.
	_ = viper.BindEnv("database_url", "LLMRACE_DATABASE_URL", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.TracingEndpoint == "" {
		// OTel's own standard env var is honored even without the LLMRACE_ prefix.
		if ep := viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			cfg.TracingEnabled = true
			cfg.TracingEndpoint = ep
		}
	}

	return &cfg, nil
}

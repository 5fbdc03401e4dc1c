// Package config defines the process configuration for the Skipper service.
// Configuration is loaded once at startup and is immutable thereafter,
// following 12-Factor principles: environment variables (optionally seeded
// from a dotenv file) populate a typed struct that is validated before the
// process starts serving.
//
// Agent behavior (thresholds, dry-run, escalation timeout) is deliberately
// NOT part of the environment config: it lives in a YAML file reloaded per
// evaluation run so threshold changes do not require a restart. See agent.go.
package config

import (
	"time"

	"skipper/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"skipper"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProviderConfig
	Narrative NarrativeConfig

	// AgentConfigPath points to the YAML file holding agent flags and
	// thresholds. A missing or unparseable file falls back to safe defaults.
	AgentConfigPath string `envconfig:"AGENT_CONFIG_PATH" default:"skipper.yaml"`
}

// ServerConfig holds HTTP server settings for the admin/approval API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"20s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	// RateLimit is requests per minute per client IP on the API.
	RateLimit int `envconfig:"HTTP_RATE_LIMIT" default:"120"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// MigrationsPath is the directory containing SQL migration files.
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"internal/db/migrations"`
}

// RedisConfig holds the provider-reading cache settings. The cache is
// optional: an empty Addr disables it and providers are called directly.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password SecretString  `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"PROVIDER_CACHE_TTL" default:"10m"`
}

// ProviderConfig holds external signal-source settings. Provider calls carry
// conservative seconds-scale timeouts so a slow upstream can never stall the
// expiry sweep or a batch run.
type ProviderConfig struct {
	WeatherBaseURL string        `envconfig:"WEATHER_API_BASE_URL" default:"https://api.weather.gov"`
	TrailBaseURL   string        `envconfig:"TRAIL_API_BASE_URL"`
	UserAgent      string        `envconfig:"PROVIDER_USER_AGENT" default:"Skipper/1.0 (ski club practice agent)"`
	Timeout        time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"8s"`
}

// NarrativeConfig holds settings for the optional LLM narrative backend.
// When the API key is empty, the deterministic template generator is used.
type NarrativeConfig struct {
	AnthropicAPIKey SecretString  `envconfig:"ANTHROPIC_API_KEY"`
	Model           string        `envconfig:"NARRATIVE_MODEL" default:"claude-3-5-haiku-latest"`
	Timeout         time.Duration `envconfig:"NARRATIVE_TIMEOUT" default:"15s"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

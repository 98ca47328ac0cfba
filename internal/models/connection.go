package models

import "time"

// ConnectionType identifies the wire protocol family a Connection speaks.
type ConnectionType string

const (
	ConnectionOllama         ConnectionType = "OLLAMA"
	ConnectionOpenAI         ConnectionType = "OPENAI"
	ConnectionAnthropic      ConnectionType = "ANTHROPIC"
	ConnectionOpenRouter     ConnectionType = "OPENROUTER"
	ConnectionOpenAICompat   ConnectionType = "OPENAI_COMPAT"
	ConnectionLlamaCppOpenAI ConnectionType = "LLAMACPP_OPENAI"
	ConnectionCustom         ConnectionType = "CUSTOM"
)

// Connection is a provider endpoint a Car binds to.
type Connection struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Type              ConnectionType `db:"type" json:"type"`
	BaseURL           string         `db:"base_url" json:"base_url"`
	APIKeyEncrypted   *string        `db:"api_key_encrypted" json:"api_key_encrypted,omitempty"`
	APIKeyEnvVar      *string        `db:"api_key_env_var" json:"api_key_env_var,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// ProviderSettings holds per-type concurrency/retry configuration.
type ProviderSettings struct {
	ID              string         `db:"id" json:"id"`
	ProviderType    ConnectionType `db:"provider_type" json:"provider_type"`
	MaxInFlight     int            `db:"max_in_flight" json:"max_in_flight"`
	TimeoutMs       int            `db:"timeout_ms" json:"timeout_ms"`
	RetryCount      int            `db:"retry_count" json:"retry_count"`
	RetryBackoffMs  int            `db:"retry_backoff_ms" json:"retry_backoff_ms"`
}

// DefaultProviderSettings returns the fallback settings used when none are configured
// for a provider type (executor §4.E step 1).
func DefaultProviderSettings(providerType ConnectionType) ProviderSettings {
	return ProviderSettings{
		ProviderType:   providerType,
		MaxInFlight:    1,
		TimeoutMs:      60000,
		RetryCount:     1,
		RetryBackoffMs: 400,
	}
}

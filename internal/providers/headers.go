package providers

import (
	"fmt"
	"strings"
)

// AuthSource records where an API key was resolved from (§4.A Header composition,
// surfaced verbatim on the runtime-verification endpoint).
type AuthSource string

const (
	AuthSourceEncryptedDB AuthSource = "encrypted_db"
	AuthSourceEnvVar      AuthSource = "env_var"
	AuthSourceNone        AuthSource = "none"
)

// ResolvedKey is the outcome of API-key resolution for one Connection.
type ResolvedKey struct {
	Key    string
	Source AuthSource
}

// BuildHeaders composes request headers for connType, following §4.A's per-mode rules.
// openRouterReferer and openRouterTitle are the HTTP-Referer and X-Title values for
// OPENROUTER connections — both optional, never required for correctness.
func BuildHeaders(connType string, key ResolvedKey, openRouterReferer, openRouterTitle string) map[string]string {
	headers := map[string]string{}
	if key.Key == "" {
		if connType == "OPENROUTER" && openRouterReferer != "" {
			headers["HTTP-Referer"] = openRouterReferer
			headers["X-Title"] = openRouterTitle
		}
		return headers
	}

	if connType == "ANTHROPIC" {
		headers["x-api-key"] = key.Key
		headers["anthropic-version"] = "2023-06-01"
		return headers
	}

	headers["Authorization"] = "Bearer " + key.Key
	switch connType {
	case "OPENAI_COMPAT", "LLAMACPP_OPENAI", "CUSTOM":
		headers["X-API-Key"] = key.Key
		headers["api-key"] = key.Key
	}
	if connType == "OPENROUTER" && openRouterReferer != "" {
		headers["HTTP-Referer"] = openRouterReferer
		headers["X-Title"] = openRouterTitle
	}
	return headers
}

// ModelsPath returns the model-discovery path for connType (§4.A discover_models).
func ModelsPath(connType string) string {
	if connType == "OLLAMA" {
		return "/api/tags"
	}
	if connType == "OPENROUTER" {
		return "/api/v1/models"
	}
	return "/v1/models"
}

// ChatPath returns the generate path for connType.
func ChatPath(connType string) string {
	switch connType {
	case "OLLAMA":
		return "/api/chat"
	case "ANTHROPIC":
		return "/v1/messages"
	case "OPENROUTER":
		return "/api/v1/chat/completions"
	default:
		return "/v1/chat/completions"
	}
}

// JoinURL concatenates baseURL and path, trimming the duplicate slash at the seam.
func JoinURL(baseURL, path string) string {
	return fmt.Sprintf("%s%s", strings.TrimSuffix(baseURL, "/"), path)
}

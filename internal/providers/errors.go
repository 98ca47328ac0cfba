package providers

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for the client-facing hint (§7 ProviderError).
type ErrorKind string

const (
	ErrKindConnection    ErrorKind = "connection"
	ErrKindAuth          ErrorKind = "auth"
	ErrKindRateLimit     ErrorKind = "rate_limit"
	ErrKindBadRequest    ErrorKind = "bad_request"
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindServer        ErrorKind = "server"
	ErrKindUnknown       ErrorKind = "unknown"
)

// ProviderError is the normalized error surfaced for a failed Generate/TestConnection/
// DiscoverModels call. Hint carries an actionable, human-readable suggestion — grounded
// on goclaw's errors.go classify-then-format idiom, adapted to this module's connection
// types instead of goclaw's.
type ProviderError struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

func (e *ProviderError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Hint)
}

// ClassifyError inspects a raw transport error and connection context to build a ProviderError.
// baseURL lets the hint point at the likely cause (localhost-from-container,
// host.docker.internal, Jan's port) rather than just repeating the transport error. hadKey
// is not consulted here; the missing-key hint comes from ClassifyStatus.
func ClassifyError(err error, baseURL string, hadKey bool) *ProviderError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &ProviderError{Kind: ErrKindTimeout, Message: msg, Hint: "the provider did not respond within the configured timeout; consider raising timeout_ms or checking the provider's own load"}

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "dial tcp"):
		return &ProviderError{Kind: ErrKindConnection, Message: msg, Hint: connectionHint(baseURL)}

	default:
		return &ProviderError{Kind: ErrKindUnknown, Message: msg}
	}
}

// ClassifyStatus builds a ProviderError from an HTTP status code and response body,
// mirroring goclaw's CheckResponseBody substring checks but against this module's
// provider vocabulary.
func ClassifyStatus(statusCode int, body string, hadKey bool) *ProviderError {
	lower := strings.ToLower(body)
	switch {
	case statusCode == 403 && strings.Contains(lower, "invalid host header"):
		return &ProviderError{Kind: ErrKindAuth, Message: fmt.Sprintf("authentication failed (HTTP %d): %s", statusCode, truncate(body, 300)), Hint: "Jan's local server must have 'Allow CORS' and trusted hosts configured to accept requests from this backend's origin"}

	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
		hint := "check that the connection's API key is correct and has not expired"
		if !hadKey {
			hint = "no API key was resolved for this connection; set api_key_encrypted or api_key_env_var"
		}
		return &ProviderError{Kind: ErrKindAuth, Message: fmt.Sprintf("authentication failed (HTTP %d): %s", statusCode, truncate(body, 300)), Hint: hint}

	case statusCode == 429 || strings.Contains(lower, "rate limit"):
		return &ProviderError{Kind: ErrKindRateLimit, Message: fmt.Sprintf("rate limited (HTTP %d): %s", statusCode, truncate(body, 300)), Hint: "the provider is throttling requests; retries wait retry_backoff_ms between attempts and may still succeed"}

	case statusCode == 400 || strings.Contains(lower, "context_length_exceeded") || strings.Contains(lower, "invalid request"):
		hint := "the request was rejected as malformed"
		if strings.Contains(lower, "context_length_exceeded") {
			hint = "the prompt plus max_tokens exceeds the model's context window; shorten the prompt or lower max_tokens"
		}
		return &ProviderError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("bad request (HTTP %d): %s", statusCode, truncate(body, 300)), Hint: hint}

	case statusCode >= 500:
		return &ProviderError{Kind: ErrKindServer, Message: fmt.Sprintf("provider server error (HTTP %d): %s", statusCode, truncate(body, 300))}

	default:
		return &ProviderError{Kind: ErrKindUnknown, Message: fmt.Sprintf("unexpected response (HTTP %d): %s", statusCode, truncate(body, 300))}
	}
}

// connectionHint guesses why a connection-refused/no-such-host error occurred, following
// goclaw's docker-localhost / Windows-host / Jan-trusted-host reasoning.
func connectionHint(baseURL string) string {
	lower := strings.ToLower(baseURL)
	switch {
	case strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1"):
		return "localhost inside a container does not reach the host; if this backend runs in Docker, use host.docker.internal (or the container's gateway IP) instead of localhost"
	case strings.Contains(lower, "host.docker.internal"):
		return "host.docker.internal only resolves on Docker Desktop (macOS/Windows); on Linux add --add-host=host.docker.internal:host-gateway or use the host's LAN IP"
	case strings.Contains(lower, ":1337"):
		return "Jan's local server must have 'Allow CORS' and trusted hosts configured to accept requests from this backend's origin"
	default:
		return "verify the base URL is reachable from this backend's network and that the provider's server is running"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package providers normalizes three LLM wire protocols (OpenAI-compatible, Anthropic,
// Ollama) behind one Client interface (§4.A), grounded on the teacher's client-struct +
// streaming-callback shape and on goclaw's error-classification idiom.
package providers

import "context"

// Message is one normalized chat-turn. Role is "system", "user", "assistant", or "tool".
// ToolCallID/Name are only set on role "tool" (a tool-result turn).
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	Name       string
}

// ChatRequest is the normalized request passed to Client.Generate, built from a Car's
// sampling configuration and a Test's prompts (§4.A, §4.E step 1/build_request).
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   *int
	Stop        *string
	Seed        *int
	Tools       []byte // raw JSON tool-schema array, passed through verbatim when present
}

// ToolCall is one tool invocation the model requested mid-stream.
type ToolCall struct {
	ID        string
	Name      string
	Arguments []byte // JSON object; may be {"raw": "..."} if the model emitted malformed JSON
}

// Usage holds token accounting as reported (or estimated) by the provider.
type Usage struct {
	CompletionTokens int
	PromptTokens     int
	Estimated        bool
}

// Response is the fully-drained result of one Generate call.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Raw       []byte // raw stream payload lines, newline-joined; persisted under "provider_raw" in Output.raw_provider_payload
}

// TokenCallback is invoked for every text delta in stream-arrival order.
type TokenCallback func(delta string)

// TelemetryCallback is invoked for provider-synthesized telemetry events (e.g. "tool.call.detected").
type TelemetryCallback func(eventType string, payload map[string]interface{})

// Client is the Provider Client surface (§4.A): model discovery, connectivity probing,
// and normalized streaming generation.
type Client interface {
	DiscoverModels(ctx context.Context, conn ConnectionInfo, timeoutMs int) ([]string, error)
	TestConnection(ctx context.Context, conn ConnectionInfo, timeoutMs int) (ok bool, latencyMs int, models []string, errMsg string)
	Generate(ctx context.Context, conn ConnectionInfo, req ChatRequest, timeoutMs int, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error)
}

// ConnectionInfo is the subset of models.Connection the provider client needs — kept
// decoupled from internal/models so this package has no dependency on the repository layer.
type ConnectionInfo struct {
	Type       string // models.ConnectionType value
	BaseURL    string
	APIKey     string // resolved plaintext key (decrypted, or read from env), empty if none
}

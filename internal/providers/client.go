package providers

import "context"

// dispatchClient implements Client by routing each call to the protocol-specific client
// selected by ProviderMode. This is the single Client the rest of the backend depends on.
type dispatchClient struct {
	openAICompat *openAICompatClient
	anthropic    *anthropicClient
	ollama       *ollamaClient
}

// NewClient returns the Client used for every connection type in the system.
func NewClient() Client {
	return &dispatchClient{
		openAICompat: newOpenAICompatClient(),
		anthropic:    newAnthropicClient(),
		ollama:       newOllamaClient(),
	}
}

func (d *dispatchClient) backendFor(connType string) Client {
	switch ProviderMode(connType) {
	case ModeAnthropic:
		return d.anthropic
	case ModeOllama:
		return d.ollama
	default:
		return d.openAICompat
	}
}

func (d *dispatchClient) DiscoverModels(ctx context.Context, conn ConnectionInfo, timeoutMs int) ([]string, error) {
	return d.backendFor(conn.Type).DiscoverModels(ctx, conn, timeoutMs)
}

func (d *dispatchClient) TestConnection(ctx context.Context, conn ConnectionInfo, timeoutMs int) (bool, int, []string, string) {
	return d.backendFor(conn.Type).TestConnection(ctx, conn, timeoutMs)
}

func (d *dispatchClient) Generate(ctx context.Context, conn ConnectionInfo, req ChatRequest, timeoutMs int, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	return d.backendFor(conn.Type).Generate(ctx, conn, req, timeoutMs, onToken, onTelemetry)
}

package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAICompatClient speaks the OpenAI chat-completions wire protocol, shared by
// OPENAI_COMPAT, LLAMACPP_OPENAI, OPENROUTER, and CUSTOM connection types (§4.A).
// Grounded on original_source's _generate_openai_compat SSE loop, re-expressed with
// Go's bufio.Scanner instead of Python's async line iterator.
type openAICompatClient struct {
	httpClient *http.Client
}

func newOpenAICompatClient() *openAICompatClient {
	return &openAICompatClient{httpClient: &http.Client{}}
}

type oaChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type oaStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaChatRequestBody struct {
	Model         string          `json:"model"`
	Messages      []oaChatMessage `json:"messages"`
	Temperature   float64         `json:"temperature"`
	TopP          float64         `json:"top_p"`
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Stop          *string         `json:"stop,omitempty"`
	Seed          *int            `json:"seed,omitempty"`
	Stream        bool            `json:"stream"`
	StreamOptions oaStreamOptions `json:"stream_options"`
	Tools         json.RawMessage `json:"tools,omitempty"`
}

func (c *openAICompatClient) DiscoverModels(ctx context.Context, conn ConnectionInfo, timeoutMs int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	url := JoinURL(conn.BaseURL, ModelsPath(conn.Type))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	applyHeaders(req, conn)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyError(err, conn.BaseURL, conn.APIKey != "")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(resp.StatusCode, string(body), conn.APIKey != "")
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing models response: %w", err)
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (c *openAICompatClient) TestConnection(ctx context.Context, conn ConnectionInfo, timeoutMs int) (bool, int, []string, string) {
	start := time.Now()
	models, err := c.DiscoverModels(ctx, conn, timeoutMs)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return false, latencyMs, nil, err.Error()
	}
	return true, latencyMs, models, ""
}

func (c *openAICompatClient) Generate(ctx context.Context, conn ConnectionInfo, req ChatRequest, timeoutMs int, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	body := oaChatRequestBody{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		Stop:          req.Stop,
		Seed:          req.Seed,
		Stream:        true,
		StreamOptions: oaStreamOptions{IncludeUsage: true},
		Tools:         req.Tools,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, oaChatMessage{
			Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID,
		})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := JoinURL(conn.BaseURL, ChatPath(conn.Type))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyHeaders(httpReq, conn)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ClassifyError(err, conn.BaseURL, conn.APIKey != "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, ClassifyStatus(resp.StatusCode, string(errBody), conn.APIKey != "")
	}

	return parseOpenAIStream(resp.Body, onToken, onTelemetry)
}

// toolFragment accumulates one tool call's pieces across however many SSE chunks they
// arrive in, keyed by the provider's per-call index (original_source's tool_fragments dict).
type toolFragment struct {
	id   string
	name string
	args strings.Builder
}

func parseOpenAIStream(body io.Reader, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	fragments := map[int]*toolFragment{}
	order := []int{}
	var usage Usage
	var raw bytes.Buffer

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		raw.WriteString(data)
		raw.WriteByte('\n')

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   string `json:"content"`
					ToolCalls []struct {
						Index    int    `json:"index"`
						ID       string `json:"id"`
						Type     string `json:"type"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *struct {
				CompletionTokens int `json:"completion_tokens"`
				PromptTokens     int `json:"prompt_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.Usage != nil {
			usage.CompletionTokens = chunk.Usage.CompletionTokens
			usage.PromptTokens = chunk.Usage.PromptTokens
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if onToken != nil {
					onToken(choice.Delta.Content)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				frag, ok := fragments[tc.Index]
				if !ok {
					frag = &toolFragment{}
					fragments[tc.Index] = frag
					order = append(order, tc.Index)
					if onTelemetry != nil {
						onTelemetry("tool.call.detected", map[string]interface{}{"index": tc.Index})
					}
				}
				if tc.ID != "" {
					frag.id = tc.ID
				}
				if tc.Function.Name != "" {
					frag.name = tc.Function.Name
				}
				frag.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	toolCalls := make([]ToolCall, 0, len(order))
	for i, idx := range order {
		frag := fragments[idx]
		id := frag.id
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		argStr := frag.args.String()
		var js json.RawMessage
		if err := json.Unmarshal([]byte(argStr), &js); err != nil {
			fallback, _ := json.Marshal(map[string]string{"raw": argStr})
			js = fallback
		}
		toolCalls = append(toolCalls, ToolCall{ID: id, Name: frag.name, Arguments: js})
	}

	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = wordCountFallback(text.String())
		usage.Estimated = true
	}

	return &Response{Text: text.String(), ToolCalls: toolCalls, Usage: usage, Raw: raw.Bytes()}, nil
}

func wordCountFallback(text string) int {
	n := len(strings.Fields(text))
	if n < 1 {
		return 1
	}
	return n
}

func applyHeaders(req *http.Request, conn ConnectionInfo) {
	for k, v := range BuildHeaders(conn.Type, ResolvedKey{Key: conn.APIKey}, "", "") {
		req.Header.Set(k, v)
	}
}

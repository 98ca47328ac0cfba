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

// anthropicClient speaks Anthropic's Messages API: system messages are a top-level field
// rather than a role in the messages array, and streaming uses typed `event:`/`data:`
// pairs instead of OpenAI's flat `data:` lines (§4.A). Not present in original_source —
// built directly from the spec's protocol description plus Anthropic's published Messages
// API streaming format, since the Python source routed ANTHROPIC through its generic
// OpenAI-compatible path and never implemented this wire format.
type anthropicClient struct {
	httpClient *http.Client
}

func newAnthropicClient() *anthropicClient {
	return &anthropicClient{httpClient: &http.Client{}}
}

type anthMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthRequestBody struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []anthMessage   `json:"messages"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p"`
	MaxTokens   int             `json:"max_tokens"`
	Stop        []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream"`
	Tools       json.RawMessage `json:"tools,omitempty"`
}

func (c *anthropicClient) DiscoverModels(ctx context.Context, conn ConnectionInfo, timeoutMs int) ([]string, error) {
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

func (c *anthropicClient) TestConnection(ctx context.Context, conn ConnectionInfo, timeoutMs int) (bool, int, []string, string) {
	start := time.Now()
	models, err := c.DiscoverModels(ctx, conn, timeoutMs)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return false, latencyMs, nil, err.Error()
	}
	return true, latencyMs, models, ""
}

// buildAnthropicBody splits out system-role messages, joining their content with blank
// lines into the top-level `system` field (§4.A message serialization differences), and
// passes every other message through as a user/assistant turn.
func buildAnthropicBody(req ChatRequest) anthRequestBody {
	body := anthRequestBody{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      true,
		Tools:       req.Tools,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	} else {
		body.MaxTokens = 4096
	}
	if req.Stop != nil {
		body.Stop = []string{*req.Stop}
	}

	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		role := m.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		body.Messages = append(body.Messages, anthMessage{Role: role, Content: m.Content})
	}
	body.System = strings.Join(systemParts, "\n\n")
	return body
}

func (c *anthropicClient) Generate(ctx context.Context, conn ConnectionInfo, req ChatRequest, timeoutMs int, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	body := buildAnthropicBody(req)
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

	return parseAnthropicStream(resp.Body, onToken, onTelemetry)
}

// parseAnthropicStream reads the `event: <type>` / `data: <json>` pair protocol,
// accumulating text from content_block_delta events and usage from message_delta.
func parseAnthropicStream(body io.Reader, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	fragments := map[int]*toolFragment{}
	order := []int{}
	var usage Usage
	var raw bytes.Buffer

	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			raw.WriteString(data)
			raw.WriteByte('\n')

			switch currentEvent {
			case "content_block_start":
				var ev struct {
					Index        int `json:"index"`
					ContentBlock struct {
						Type string `json:"type"`
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"content_block"`
				}
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					if ev.ContentBlock.Type == "tool_use" {
						frag := &toolFragment{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
						fragments[ev.Index] = frag
						order = append(order, ev.Index)
						if onTelemetry != nil {
							onTelemetry("tool.call.detected", map[string]interface{}{"index": ev.Index})
						}
					}
				}

			case "content_block_delta":
				var ev struct {
					Index int `json:"index"`
					Delta struct {
						Type        string `json:"type"`
						Text        string `json:"text"`
						PartialJSON string `json:"partial_json"`
					} `json:"delta"`
				}
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					switch ev.Delta.Type {
					case "text_delta":
						text.WriteString(ev.Delta.Text)
						if onToken != nil {
							onToken(ev.Delta.Text)
						}
					case "input_json_delta":
						if frag, ok := fragments[ev.Index]; ok {
							frag.args.WriteString(ev.Delta.PartialJSON)
						}
					}
				}

			case "message_delta":
				var ev struct {
					Usage struct {
						OutputTokens int `json:"output_tokens"`
					} `json:"usage"`
				}
				if err := json.Unmarshal([]byte(data), &ev); err == nil && ev.Usage.OutputTokens > 0 {
					usage.CompletionTokens = ev.Usage.OutputTokens
				}

			case "message_start":
				var ev struct {
					Message struct {
						Usage struct {
							InputTokens int `json:"input_tokens"`
						} `json:"usage"`
					} `json:"message"`
				}
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					usage.PromptTokens = ev.Message.Usage.InputTokens
				}
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

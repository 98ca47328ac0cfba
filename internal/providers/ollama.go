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

// ollamaClient speaks Ollama's native /api/chat protocol: newline-delimited JSON objects
// rather than SSE, terminated by a final object carrying "done": true (§4.A).
type ollamaClient struct {
	httpClient *http.Client
}

func newOllamaClient() *ollamaClient {
	return &ollamaClient{httpClient: &http.Client{}}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        *int    `json:"seed,omitempty"`
	NumPredict  *int    `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequestBody struct {
	Model    string          `json:"model"`
	Messages []oaChatMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
	Tools    json.RawMessage `json:"tools,omitempty"`
}

func (c *ollamaClient) DiscoverModels(ctx context.Context, conn ConnectionInfo, timeoutMs int) ([]string, error) {
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
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing models response: %w", err)
	}
	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (c *ollamaClient) TestConnection(ctx context.Context, conn ConnectionInfo, timeoutMs int) (bool, int, []string, string) {
	start := time.Now()
	models, err := c.DiscoverModels(ctx, conn, timeoutMs)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return false, latencyMs, nil, err.Error()
	}
	return true, latencyMs, models, ""
}

func (c *ollamaClient) Generate(ctx context.Context, conn ConnectionInfo, req ChatRequest, timeoutMs int, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	body := ollamaChatRequestBody{
		Model:  req.Model,
		Stream: true,
		Tools:  req.Tools,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.Stop != nil {
		body.Options.Stop = []string{*req.Stop}
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

	return parseOllamaStream(resp.Body, onToken, onTelemetry)
}

func parseOllamaStream(body io.Reader, onToken TokenCallback, onTelemetry TelemetryCallback) (*Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	var toolCalls []ToolCall
	var usage Usage
	var raw bytes.Buffer

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw.WriteString(line)
		raw.WriteByte('\n')

		var chunk struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string          `json:"name"`
						Arguments json.RawMessage `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			Done           bool `json:"done"`
			EvalCount      int  `json:"eval_count"`
			PromptEvalCount int `json:"prompt_eval_count"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}

		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if onToken != nil {
				onToken(chunk.Message.Content)
			}
		}
		for i, tc := range chunk.Message.ToolCalls {
			if onTelemetry != nil {
				onTelemetry("tool.call.detected", map[string]interface{}{"index": i})
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		if chunk.Done {
			usage.CompletionTokens = chunk.EvalCount
			usage.PromptTokens = chunk.PromptEvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = wordCountFallback(text.String())
		usage.Estimated = true
	}

	return &Response{Text: text.String(), ToolCalls: toolCalls, Usage: usage, Raw: raw.Bytes()}, nil
}

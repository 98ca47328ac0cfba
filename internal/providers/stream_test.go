package providers

import (
	"strings"
	"testing"
)

func TestParseOpenAIStream_TextAndUsage(t *testing.T) {
	sse := "" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hello \"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"completion_tokens\":2,\"prompt_tokens\":5}}\n" +
		"data: [DONE]\n"

	var got strings.Builder
	resp, err := parseOpenAIStream(strings.NewReader(sse), func(delta string) { got.WriteString(delta) }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("expected text %q, got %q", "hello world", resp.Text)
	}
	if got.String() != "hello world" {
		t.Fatalf("onToken deltas did not reconstruct text: %q", got.String())
	}
	if resp.Usage.CompletionTokens != 2 || resp.Usage.PromptTokens != 5 || resp.Usage.Estimated {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestParseOpenAIStream_ToolCallFragmentAssembly(t *testing.T) {
	sse := "" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_abc\",\"function\":{\"name\":\"calculator\",\"arguments\":\"{\\\"a\\\":\"}}]}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"1,\\\"b\\\":2}\"}}]}}]}\n" +
		"data: [DONE]\n"

	resp, err := parseOpenAIStream(strings.NewReader(sse), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Name != "calculator" {
		t.Fatalf("unexpected tool call identity: %+v", tc)
	}
	if string(tc.Arguments) != `{"a":1,"b":2}` {
		t.Fatalf("unexpected assembled arguments: %s", tc.Arguments)
	}
}

func TestParseOpenAIStream_MalformedToolArgumentsFallback(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_x\",\"function\":{\"name\":\"f\",\"arguments\":\"not json\"}}]}}]}\n" +
		"data: [DONE]\n"

	resp, err := parseOpenAIStream(strings.NewReader(sse), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.ToolCalls[0].Arguments) != `{"raw":"not json"}` {
		t.Fatalf("expected raw fallback, got %s", resp.ToolCalls[0].Arguments)
	}
}

func TestParseOpenAIStream_UsageFallbackEstimatesFromWordCount(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"content\":\"one two three\"}}]}\n" +
		"data: [DONE]\n"

	resp, err := parseOpenAIStream(strings.NewReader(sse), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Usage.Estimated || resp.Usage.CompletionTokens != 3 {
		t.Fatalf("expected estimated usage of 3, got %+v", resp.Usage)
	}
}

func TestParseAnthropicStream_TextDeltaAndToolUse(t *testing.T) {
	sse := "" +
		"event: message_start\n" +
		"data: {\"message\":{\"usage\":{\"input_tokens\":10}}}\n" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"text\"}}\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi there\"}}\n" +
		"event: content_block_start\n" +
		"data: {\"index\":1,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"calculator\"}}\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"x\\\":1}\"}}\n" +
		"event: message_delta\n" +
		"data: {\"usage\":{\"output_tokens\":7}}\n"

	resp, err := parseAnthropicStream(strings.NewReader(sse), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("expected text %q, got %q", "hi there", resp.Text)
	}
	if resp.Usage.CompletionTokens != 7 || resp.Usage.PromptTokens != 10 || resp.Usage.Estimated {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "toolu_1" || resp.ToolCalls[0].Name != "calculator" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if string(resp.ToolCalls[0].Arguments) != `{"x":1}` {
		t.Fatalf("unexpected tool arguments: %s", resp.ToolCalls[0].Arguments)
	}
}

func TestParseOllamaStream_DoneSentinelCarriesUsage(t *testing.T) {
	nd := `{"message":{"content":"hi "},"done":false}` + "\n" +
		`{"message":{"content":"there"},"done":false}` + "\n" +
		`{"message":{"content":""},"done":true,"eval_count":4,"prompt_eval_count":9}` + "\n"

	resp, err := parseOllamaStream(strings.NewReader(nd), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("expected text %q, got %q", "hi there", resp.Text)
	}
	if resp.Usage.CompletionTokens != 4 || resp.Usage.PromptTokens != 9 || resp.Usage.Estimated {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestBuildHeaders_AnthropicUsesXAPIKey(t *testing.T) {
	h := BuildHeaders("ANTHROPIC", ResolvedKey{Key: "sk-ant-1"}, "", "")
	if h["x-api-key"] != "sk-ant-1" || h["anthropic-version"] != "2023-06-01" {
		t.Fatalf("unexpected anthropic headers: %+v", h)
	}
	if _, ok := h["Authorization"]; ok {
		t.Fatalf("anthropic headers should not include Authorization: %+v", h)
	}
}

func TestBuildHeaders_OpenAICompatDuplicatesKey(t *testing.T) {
	h := BuildHeaders("OPENAI_COMPAT", ResolvedKey{Key: "sk-1"}, "", "")
	if h["Authorization"] != "Bearer sk-1" || h["X-API-Key"] != "sk-1" || h["api-key"] != "sk-1" {
		t.Fatalf("unexpected openai-compat headers: %+v", h)
	}
}

func TestBuildHeaders_OpenRouterAddsAttribution(t *testing.T) {
	h := BuildHeaders("OPENROUTER", ResolvedKey{Key: "sk-1"}, "https://example.com", "My Race")
	if h["HTTP-Referer"] != "https://example.com" || h["X-Title"] != "My Race" {
		t.Fatalf("unexpected openrouter headers: %+v", h)
	}
}

func TestProviderMode_SelectsByConnectionType(t *testing.T) {
	cases := map[string]Mode{
		"OLLAMA":       ModeOllama,
		"ANTHROPIC":    ModeAnthropic,
		"OPENAI_COMPAT": ModeOpenAICompat,
		"OPENROUTER":    ModeOpenAICompat,
		"CUSTOM":        ModeOpenAICompat,
	}
	for connType, want := range cases {
		if got := ProviderMode(connType); got != want {
			t.Fatalf("ProviderMode(%q) = %q, want %q", connType, got, want)
		}
	}
}

package tools

import (
	"testing"
)

func TestCalculator_BasicPrecedence(t *testing.T) {
	cases := map[string]float64{
		"2 + 3 * 4":     14,
		"(2 + 3) * 4":   20,
		"10 / 2 - 1":    4,
		"2 ^ 3 ^ 2":     512,
		"-5 + 2":        -3,
		"7 % 3":         1,
	}
	for expr, want := range cases {
		got, err := Calculator(expr)
		if err != nil {
			t.Fatalf("Calculator(%q) returned error: %v", expr, err)
		}
		if got != want {
			t.Fatalf("Calculator(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestCalculator_DivisionByZero(t *testing.T) {
	if _, err := Calculator("1 / 0"); err == nil {
		t.Fatal("expected error for division by zero")
	}
}

func TestCalculator_UnsupportedToken(t *testing.T) {
	if _, err := Calculator("2 + abc"); err == nil {
		t.Fatal("expected error for unsupported token")
	}
}

func TestJSONValidate_ValidAndInvalid(t *testing.T) {
	if res := JSONValidate(`{"a": 1}`); !res.Valid {
		t.Fatalf("expected valid JSON, got %+v", res)
	}
	if res := JSONValidate(`{not json`); res.Valid {
		t.Fatal("expected invalid JSON to report Valid=false")
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	text := "here is code:\n```go\nfmt.Println(1)\n```\nand more:\n```\nplain\n```"
	blocks := ExtractCodeBlocks(text)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0] != "fmt.Println(1)" || blocks[1] != "plain" {
		t.Fatalf("unexpected block contents: %+v", blocks)
	}
}

func TestExecute_UnknownToolReturnsError(t *testing.T) {
	if _, err := Execute("no_such_tool", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestParseFallbackToolCommand_WholeTextPayload(t *testing.T) {
	call := ParseFallbackToolCommand(`{"tool": "calculator", "args": {"expression": "1+1"}}`)
	if call == nil {
		t.Fatal("expected non-nil fallback call")
	}
	if call.Name != "calculator" {
		t.Fatalf("unexpected tool name: %q", call.Name)
	}
	if call.Arguments["expression"] != "1+1" {
		t.Fatalf("unexpected arguments: %+v", call.Arguments)
	}
}

func TestParseFallbackToolCommand_EmbeddedInProse(t *testing.T) {
	text := "Sure, I'll call the tool: {\"tool\": \"json_validate\", \"args\": {\"json_string\": \"{}\"}} thanks"
	call := ParseFallbackToolCommand(text)
	if call == nil || call.Name != "json_validate" {
		t.Fatalf("expected json_validate call, got %+v", call)
	}
}

func TestParseFallbackToolCommand_NoPayloadReturnsNil(t *testing.T) {
	if call := ParseFallbackToolCommand("just plain text, no tool call here"); call != nil {
		t.Fatalf("expected nil, got %+v", call)
	}
}

func TestParseFallbackToolCommand_MissingArgsDefaultsToEmpty(t *testing.T) {
	call := ParseFallbackToolCommand(`{"tool": "calculator"}`)
	if call == nil {
		t.Fatal("expected non-nil fallback call")
	}
	if len(call.Arguments) != 0 {
		t.Fatalf("expected empty arguments, got %+v", call.Arguments)
	}
}

func TestParseFallbackToolCommand_NonObjectArgsReturnsNil(t *testing.T) {
	if call := ParseFallbackToolCommand(`{"tool": "calculator", "args": "1+1"}`); call != nil {
		t.Fatalf("expected nil when args is not an object, got %+v", call)
	}
}

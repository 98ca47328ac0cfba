// Package tools implements the Tool Runtime (§4.B): a small fixed set of tools the
// executor can invoke when a model's response contains tool calls, plus a fallback
// parser for models that emit a JSON command instead of native tool_calls. Grounded
// on original_source's runs/tools.py.
package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult is json_validate's result shape.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// JSONValidate reports whether jsonString parses as valid JSON.
func JSONValidate(jsonString string) ValidationResult {
	var v interface{}
	if err := json.Unmarshal([]byte(jsonString), &v); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	return ValidationResult{Valid: true}
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]+)?\n(.*?)```")

// ExtractCodeBlocks returns the trimmed contents of every fenced code block in text.
func ExtractCodeBlocks(text string) []string {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// Execute dispatches a tool call by name to its implementation, returning a JSON-
// marshalable result or a ToolExecutionError.
func Execute(toolName string, args map[string]interface{}) (map[string]interface{}, error) {
	switch toolName {
	case "calculator":
		expr, _ := args["expression"].(string)
		result, err := Calculator(expr)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"result": result}, nil

	case "json_validate":
		jsonString, _ := args["json_string"].(string)
		res := JSONValidate(jsonString)
		out := map[string]interface{}{"valid": res.Valid}
		if res.Error != "" {
			out["error"] = res.Error
		}
		return out, nil

	case "extract_code_blocks":
		text, _ := args["text"].(string)
		return map[string]interface{}{"blocks": ExtractCodeBlocks(text)}, nil

	default:
		return nil, &ToolExecutionError{Tool: toolName, Err: fmt.Errorf("unknown tool")}
	}
}

// FallbackCall is a tool invocation recovered from free-text model output when the
// provider doesn't support native tool_calls.
type FallbackCall struct {
	Name      string
	Arguments map[string]interface{}
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseFallbackToolCommand looks for a `{"tool": "...", "args": {...}}` payload in text,
// first trying the whole trimmed text as-is, then falling back to the widest brace-
// delimited substring. Returns nil if no such payload is found.
func ParseFallbackToolCommand(text string) *FallbackCall {
	trimmed := strings.TrimSpace(text)
	var payload map[string]interface{}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			payload = nil
		}
	}

	if payload == nil {
		match := jsonObjectPattern.FindString(text)
		if match == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(match), &payload); err != nil {
			return nil
		}
	}

	toolName, ok := payload["tool"].(string)
	if !ok {
		return nil
	}

	rawArgs, present := payload["args"]
	args := map[string]interface{}{}
	if present {
		asserted, ok := rawArgs.(map[string]interface{})
		if !ok {
			return nil
		}
		args = asserted
	}
	return &FallbackCall{Name: toolName, Arguments: args}
}

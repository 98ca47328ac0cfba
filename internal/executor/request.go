package executor

import (
	"encoding/json"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/providers"
)

// buildMessages turns a Test's prompts into the normalized message list (§4.E step 1),
// grounded on original_source's build_messages.
func buildMessages(test *models.Test) []providers.Message {
	var messages []providers.Message
	if test.SystemPrompt != nil && *test.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: *test.SystemPrompt})
	}
	messages = append(messages, providers.Message{Role: "user", Content: test.UserPrompt})
	return messages
}

// buildRequest assembles the ChatRequest template shared by every loop iteration of one
// attempt, grounded on original_source's build_request.
func buildRequest(car *models.Car, test *models.Test) providers.ChatRequest {
	var tools json.RawMessage
	if test.ToolsSchema != nil {
		tools = json.RawMessage(*test.ToolsSchema)
	}
	return providers.ChatRequest{
		Model:       car.ModelName,
		Messages:    buildMessages(test),
		Temperature: car.Temperature,
		TopP:        car.TopP,
		MaxTokens:   car.MaxTokens,
		Stop:        car.Stop,
		Seed:        car.Seed,
		Tools:       tools,
	}
}

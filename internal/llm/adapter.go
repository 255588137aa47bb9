package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/temirov/structgen/internal/pipeline"
)

const responseFormatJSONSchema = "json_schema"

var schemaNameInvalidCharacters = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Adapter exposes the chat completions client as a pipeline.Generator. When the request
// carries a schema, the call asks for a json_schema response format built from it.
type Adapter struct {
	Client        Client
	DefaultModel  string
	DefaultTemp   float64
	DefaultTokens int
}

func (a Adapter) Generate(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	cr := ChatCompletionRequest{
		Model:               a.DefaultModel,
		Messages:            chatMessages(req.Prompt),
		MaxCompletionTokens: a.DefaultTokens,
	}

	// Many recent models only accept the default temperature (1), so 0 and 1 are left to the
	// server and only other values are sent.
	if a.DefaultTemp != 0 && a.DefaultTemp != 1 {
		temperature := a.DefaultTemp
		cr.Temperature = &temperature
	}

	if req.Schema != nil {
		schemaBytes, err := req.Schema.JSONSchemaBytes()
		if err != nil {
			return pipeline.LLMResponse{}, fmt.Errorf("encode response schema %s: %w", req.Schema.Name(), err)
		}
		cr.ResponseFormat = &ResponseFormat{
			Type: responseFormatJSONSchema,
			JSONSchema: &JSONSchemaWrapper{
				Name:   responseSchemaName(req.Schema.Name()),
				Schema: schemaBytes,
			},
		}
	}

	out, err := a.Client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return pipeline.LLMResponse{}, err
	}
	return pipeline.LLMResponse{RawText: out}, nil
}

func chatMessages(prompt pipeline.Prompt) []ChatMessage {
	if len(prompt.Messages) == 0 {
		return []ChatMessage{{Role: pipeline.RoleUser, Content: strings.TrimSpace(prompt.Text)}}
	}
	messages := make([]ChatMessage, 0, len(prompt.Messages))
	for _, message := range prompt.Messages {
		messages = append(messages, ChatMessage{Role: message.Role, Content: strings.TrimSpace(message.Content)})
	}
	return messages
}

// responseSchemaName reduces a schema name to the characters the response_format name allows.
func responseSchemaName(name string) string {
	cleaned := strings.Trim(schemaNameInvalidCharacters.ReplaceAllString(name, "_"), "_")
	if cleaned == "" {
		return "response"
	}
	return cleaned
}

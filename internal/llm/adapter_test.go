package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temirov/structgen/internal/pipeline"
	"github.com/temirov/structgen/internal/schema"
)

func captureServer(t *testing.T, received *map[string]any, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if err := json.NewDecoder(request.Body).Decode(received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if request.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("unexpected authorization header %q", request.Header.Get("Authorization"))
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(choicePayload(content, "stop")); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAdapterSetsJSONSchemaResponseFormat(t *testing.T) {
	var received map[string]any
	server := captureServer(t, &received, `{"name":"Tom","age":65}`)

	adapter := Adapter{
		Client:        Client{HTTPBaseURL: server.URL, APIKey: "test"},
		DefaultModel:  "gpt-test",
		DefaultTokens: 128,
	}
	descriptor := schema.MustNew("person record", "",
		schema.Field{Name: "name", Type: schema.String()},
		schema.Field{Name: "age", Type: schema.Integer()},
	)
	resp, err := adapter.Generate(context.Background(), pipeline.LLMRequest{
		Prompt: pipeline.TextPrompt("  Tom is 65.  "),
		Schema: descriptor,
		Stage:  pipeline.StageAttempt,
	})
	if err != nil {
		t.Fatalf("adapter generate: %v", err)
	}
	if resp.RawText != `{"name":"Tom","age":65}` {
		t.Fatalf("unexpected response %q", resp.RawText)
	}

	if received["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", received["model"])
	}
	if received["max_completion_tokens"] != float64(128) {
		t.Fatalf("unexpected max tokens %v", received["max_completion_tokens"])
	}
	if _, hasTemperature := received["temperature"]; hasTemperature {
		t.Fatalf("temperature should be omitted for the default value")
	}
	messages, ok := received["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one message, got %v", received["messages"])
	}
	message := messages[0].(map[string]any)
	if message["role"] != "user" || message["content"] != "Tom is 65." {
		t.Fatalf("unexpected message %v", message)
	}

	rf, ok := received["response_format"].(map[string]any)
	if !ok {
		t.Fatalf("expected response_format in request, got %v", received["response_format"])
	}
	if rf["type"] != "json_schema" {
		t.Fatalf("expected type json_schema, got %v", rf["type"])
	}
	schemaPayload, ok := rf["json_schema"].(map[string]any)
	if !ok {
		t.Fatalf("expected json_schema payload, got %v", rf["json_schema"])
	}
	if schemaPayload["name"] != "person_record" {
		t.Fatalf("unexpected schema name: %v", schemaPayload["name"])
	}
	document, ok := schemaPayload["schema"].(map[string]any)
	if !ok || document["type"] != "object" {
		t.Fatalf("unexpected schema document: %v", schemaPayload["schema"])
	}
}

func TestAdapterSendsMessagesAndTemperature(t *testing.T) {
	var received map[string]any
	server := captureServer(t, &received, "ok")

	adapter := Adapter{Client: Client{HTTPBaseURL: server.URL, APIKey: "test"}, DefaultModel: "m", DefaultTemp: 0.2}
	_, err := adapter.Generate(context.Background(), pipeline.LLMRequest{
		Prompt: pipeline.MessagesPrompt(
			pipeline.Message{Role: pipeline.RoleSystem, Content: "rules"},
			pipeline.Message{Role: pipeline.RoleUser, Content: "data"},
		),
		Stage: pipeline.StageRepair,
	})
	if err != nil {
		t.Fatalf("adapter generate: %v", err)
	}
	if received["temperature"] != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", received["temperature"])
	}
	if _, hasFormat := received["response_format"]; hasFormat {
		t.Fatalf("response_format should be omitted without a schema")
	}
	messages := received["messages"].([]any)
	if len(messages) != 2 || messages[0].(map[string]any)["role"] != "system" {
		t.Fatalf("unexpected messages %v", messages)
	}
}

func TestResponseSchemaName(t *testing.T) {
	testCases := map[string]string{
		"person":        "person",
		"person record": "person_record",
		"  ":            "response",
		"a.b/c":         "a_b_c",
	}
	for input, expected := range testCases {
		if got := responseSchemaName(input); got != expected {
			t.Fatalf("responseSchemaName(%q) = %q, want %q", input, got, expected)
		}
	}
}

package structgen_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/structgen/cmd/structgen"
	"github.com/temirov/structgen/internal/pipeline"
)

const (
	testAPIKeyEnvironmentVariable = "STRUCTGEN_TEST_API_KEY"
	configurationTemplate         = `common:
  api:
    endpoint: %s
    api_key_env: STRUCTGEN_TEST_API_KEY
  logging:
    level: error
    format: json
  defaults:
    attempts: 2
    timeout_seconds: 5
    repair: false
    concurrency: 2
models:
  - name: test-model
    model_id: gpt-test
    default: true
    max_completion_tokens: 256
schemas:
  - name: person
    description: A person
    fields:
      - name: name
        type: string
        constraints: {non_empty: true}
      - name: age
        type: integer
        constraints: {ge: 0, le: 150}
`
)

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// scriptedServer answers chat completions with respond(call, request), where call starts at 1.
func scriptedServer(t *testing.T, respond func(call int, request chatRequest) string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var decoded chatRequest
		if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
			t.Errorf("decode request: %v", err)
		}
		content := respond(int(calls.Add(1)), decoded)
		writer.Header().Set("Content-Type", "application/json")
		payload := map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		if err := json.NewEncoder(writer).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func writeTestConfiguration(t *testing.T, endpoint string) string {
	t.Helper()
	t.Setenv(testAPIKeyEnvironmentVariable, "test-key")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(configurationTemplate, endpoint)), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	command := structgen.NewRootCommand()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs(args)
	err := command.Execute()
	return output.String(), err
}

func TestRunCommandPrintsSuccessfulResult(t *testing.T) {
	server, calls := scriptedServer(t, func(int, chatRequest) string {
		return "```json\n{\"name\": \"Tom\", \"age\": 65}\n```"
	})
	configPath := writeTestConfiguration(t, server.URL)

	output, err := executeCommand(t, "run", "--config", configPath, "--schema", "person", "--prompt", "Tom is 65.")
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Tom", result.Value["name"])
	assert.Equal(t, float64(65), result.Value["age"])
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunCommandRetriesWithFeedback(t *testing.T) {
	var secondPrompt string
	server, _ := scriptedServer(t, func(call int, request chatRequest) string {
		if call == 1 {
			return `{"name": "Tom", "age": "sixty-five"}`
		}
		secondPrompt = request.Messages[len(request.Messages)-1].Content
		return `{"name": "Tom", "age": 65}`
	})
	configPath := writeTestConfiguration(t, server.URL)

	output, err := executeCommand(t, "run", "--config", configPath, "--schema", "person", "--prompt", "Tom is 65.")
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, pipeline.SchemaValidationError, result.Errors[0].Kind)
	assert.Contains(t, secondPrompt, "REFINE:")
	assert.Contains(t, secondPrompt, "age: expected integer, got string")
}

func TestRunCommandFailsWhenAttemptsExhausted(t *testing.T) {
	server, calls := scriptedServer(t, func(int, chatRequest) string { return "I cannot answer that." })
	configPath := writeTestConfiguration(t, server.URL)

	output, err := executeCommand(t, "run", "--config", configPath, "--schema", "person", "--prompt", "?", "--attempts", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed after 3 attempts")

	var result pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunCommandRepairFlag(t *testing.T) {
	server, calls := scriptedServer(t, func(call int, request chatRequest) string {
		if request.Messages[0].Role == "system" {
			return `{"name": "Tom", "age": 65}`
		}
		return `{'name': 'Tom', age: 65,}`
	})
	configPath := writeTestConfiguration(t, server.URL)

	output, err := executeCommand(t, "run", "--config", configPath, "--schema", "person", "--prompt", "Tom is 65.", "--repair", "--attempts=1")
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.True(t, result.Success)
	assert.True(t, result.Repaired)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, pipeline.ParseError, result.Errors[0].Kind)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunCommandPromptValidation(t *testing.T) {
	server, calls := scriptedServer(t, func(int, chatRequest) string { return "{}" })
	configPath := writeTestConfiguration(t, server.URL)

	_, err := executeCommand(t, "run", "--config", configPath, "--schema", "person")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a prompt is required")

	_, err = executeCommand(t, "run", "--config", configPath, "--schema", "missing", "--prompt", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown schema "missing"`)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRunCommandWritesMetrics(t *testing.T) {
	server, _ := scriptedServer(t, func(int, chatRequest) string { return `{"name": "Ann", "age": 30}` })
	configPath := writeTestConfiguration(t, server.URL)
	metricsPath := filepath.Join(t.TempDir(), "structgen.prom")

	_, err := executeCommand(t, "run", "--config", configPath, "--schema", "person", "--prompt", "Ann, 30", "--metrics-file", metricsPath)
	require.NoError(t, err)

	content, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `structgen_attempts_total{outcome="success",schema="person"} 1`)
}

func TestBatchCommandPreservesOrder(t *testing.T) {
	server, _ := scriptedServer(t, func(_ int, request chatRequest) string {
		name := strings.Fields(request.Messages[0].Content)[0]
		return fmt.Sprintf(`{"name": %q, "age": 40}`, name)
	})
	configPath := writeTestConfiguration(t, server.URL)
	promptsPath := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(promptsPath, []byte("Ann is 40\n\nBob is 40\nCid is 40\n"), 0o644))

	output, err := executeCommand(t, "batch", "--config", configPath, "--schema", "person", "--prompts-file", promptsPath, "--concurrency", "3")
	require.NoError(t, err)

	var results []pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &results))
	require.Len(t, results, 3)
	for index, expected := range []string{"Ann", "Bob", "Cid"} {
		assert.True(t, results[index].Success)
		assert.Equal(t, expected, results[index].Value["name"])
	}
}

func TestListCommandShowsConfiguredSchemas(t *testing.T) {
	configPath := writeTestConfiguration(t, "http://unused.invalid")

	output, err := executeCommand(t, "list", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "person\t(fields=2)\tA person\n", output)
}

func TestSchemaCheckCommand(t *testing.T) {
	configPath := writeTestConfiguration(t, "http://unused.invalid")
	directory := t.TempDir()
	validPath := filepath.Join(directory, "valid.json")
	invalidPath := filepath.Join(directory, "invalid.json")
	require.NoError(t, os.WriteFile(validPath, []byte(`Here you go: {"name": "Tom", "age": 65, "extra": true}`), 0o644))
	require.NoError(t, os.WriteFile(invalidPath, []byte(`{"name": "", "age": 200}`), 0o644))

	output, err := executeCommand(t, "schema", "check", validPath, "--config", configPath, "--schema", "person")
	require.NoError(t, err)
	var value map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &value))
	assert.Equal(t, map[string]any{"name": "Tom", "age": float64(65)}, value)

	output, err = executeCommand(t, "schema", "check", invalidPath, "--config", configPath, "--schema", "person")
	require.Error(t, err)
	assert.Contains(t, output, "name: must not be empty")
	assert.Contains(t, output, "age: must be less than or equal to 150")
}

func TestSchemaShowCommandAcceptsFiles(t *testing.T) {
	configPath := writeTestConfiguration(t, "http://unused.invalid")
	schemaPath := filepath.Join(t.TempDir(), "article.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte("fields:\n  - name: title\n    type: string\n    description: Headline\n"), 0o644))

	output, err := executeCommand(t, "schema", "show", schemaPath, "--config", configPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "article\n"))
	assert.Contains(t, output, "- title (string, required): Headline")
	assert.Contains(t, output, `"type": "object"`)
}

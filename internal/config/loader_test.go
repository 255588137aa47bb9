package config_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/temirov/structgen/internal/config"
	"github.com/temirov/structgen/internal/schema"
)

const (
	explicitConfigurationFileName       = "explicit.yaml"
	workingDirectoryConfigurationName   = "config.yaml"
	homeDirectoryName                   = ".structgen"
	homeConfigurationFileName           = "config.yaml"
	sampleAPIEndpoint                   = "https://example.test/api"
	sampleAPIKeyEnvironmentVariableName = "EXAMPLE_API_KEY"
	explicitLoggingLevel                = "explicit-level"
	workingLoggingLevel                 = "working-level"
	homeLoggingLevel                    = "home-level"
	embeddedLoggingLevel                = "info"
	missingExplicitFileName             = "missing.yaml"
	configurationTemplate               = "common:\n  api:\n    endpoint: %s\n    api_key_env: %s\n  logging:\n    level: %s\n    format: console\n  defaults:\n    attempts: 1\n    timeout_seconds: 2\nmodels:\n  - name: default\n    provider: provider\n    model_id: model\n    default: true\n    supports_temperature: true\n    default_temperature: 0.1\n    max_completion_tokens: 10\nschemas:\n  - name: sample\n    fields:\n      - name: title\n        type: string\n"
	directoryPermissions                = 0o755
	filePermissions                     = 0o644
)

type loaderTestCase struct {
	name                 string
	setup                func(t *testing.T, workingDirectory string, homeDirectory string) (string, string)
	expectedLoggingLevel string
}

func TestRootConfigurationLoader_Load(t *testing.T) {
	testCases := []loaderTestCase{
		{
			name: "explicit path used when available",
			setup: func(t *testing.T, workingDirectory string, homeDirectory string) (string, string) {
				t.Helper()
				configurationPath := filepath.Join(workingDirectory, explicitConfigurationFileName)
				writeConfiguration(t, configurationPath, explicitLoggingLevel)
				return configurationPath, configurationPath
			},
			expectedLoggingLevel: explicitLoggingLevel,
		},
		{
			name: "explicit path missing falls back to working directory",
			setup: func(t *testing.T, workingDirectory string, homeDirectory string) (string, string) {
				t.Helper()
				workingConfigurationPath := filepath.Join(workingDirectory, workingDirectoryConfigurationName)
				writeConfiguration(t, workingConfigurationPath, workingLoggingLevel)
				explicitPath := filepath.Join(workingDirectory, missingExplicitFileName)
				return explicitPath, workingConfigurationPath
			},
			expectedLoggingLevel: workingLoggingLevel,
		},
		{
			name: "working directory used when explicit path not provided",
			setup: func(t *testing.T, workingDirectory string, homeDirectory string) (string, string) {
				t.Helper()
				workingConfigurationPath := filepath.Join(workingDirectory, workingDirectoryConfigurationName)
				writeConfiguration(t, workingConfigurationPath, workingLoggingLevel)
				return "", workingConfigurationPath
			},
			expectedLoggingLevel: workingLoggingLevel,
		},
		{
			name: "home directory used when other locations missing",
			setup: func(t *testing.T, workingDirectory string, homeDirectory string) (string, string) {
				t.Helper()
				configurationDirectory := filepath.Join(homeDirectory, homeDirectoryName)
				configurationPath := filepath.Join(configurationDirectory, homeConfigurationFileName)
				writeConfiguration(t, configurationPath, homeLoggingLevel)
				return "", configurationPath
			},
			expectedLoggingLevel: homeLoggingLevel,
		},
		{
			name: "embedded configuration used when no files available",
			setup: func(t *testing.T, workingDirectory string, homeDirectory string) (string, string) {
				t.Helper()
				return "", config.EmbeddedRootConfigurationReference
			},
			expectedLoggingLevel: embeddedLoggingLevel,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			workingDirectory := t.TempDir()
			homeDirectory := t.TempDir()

			loader := config.NewRootConfigurationLoader(workingDirectory, homeDirectory)
			explicitPath, expectedReference := testCase.setup(t, workingDirectory, homeDirectory)

			source, loadErr := loader.Load(explicitPath)
			if loadErr != nil {
				t.Fatalf("load configuration source: %v", loadErr)
			}
			if expectedReference != "" && source.Reference != expectedReference {
				t.Fatalf("expected reference %s, got %s", expectedReference, source.Reference)
			}

			rootConfiguration, parseErr := config.LoadRoot(source)
			if parseErr != nil {
				t.Fatalf("parse root configuration: %v", parseErr)
			}
			if rootConfiguration.Common.Logging.Level != testCase.expectedLoggingLevel {
				t.Fatalf("expected logging level %s, got %s", testCase.expectedLoggingLevel, rootConfiguration.Common.Logging.Level)
			}
		})
	}
}

func TestRootConfigurationLoaderEnvironmentPath(t *testing.T) {
	workingDirectory := t.TempDir()
	environmentDirectory := t.TempDir()
	writeConfiguration(t, filepath.Join(workingDirectory, workingDirectoryConfigurationName), workingLoggingLevel)
	environmentPath := filepath.Join(environmentDirectory, "structgen.yaml")
	writeConfiguration(t, environmentPath, explicitLoggingLevel)

	loader := config.NewRootConfigurationLoader(workingDirectory, "").WithEnvironmentPath(environmentPath)
	source, err := loader.Load("")
	if err != nil {
		t.Fatalf("load configuration source: %v", err)
	}
	if source.Reference != environmentPath {
		t.Fatalf("expected environment path %s, got %s", environmentPath, source.Reference)
	}
	if source.BaseDirectory() != environmentDirectory {
		t.Fatalf("expected base directory %s, got %s", environmentDirectory, source.BaseDirectory())
	}

	explicitPath := filepath.Join(workingDirectory, workingDirectoryConfigurationName)
	source, err = loader.Load(explicitPath)
	if err != nil {
		t.Fatalf("load configuration source: %v", err)
	}
	if source.Reference != explicitPath {
		t.Fatalf("expected explicit path to win, got %s", source.Reference)
	}
}

func TestRootConfigurationLoaderRejectsUnreadableExplicitPath(t *testing.T) {
	directory := t.TempDir()
	loader := config.NewRootConfigurationLoader("", "")
	if _, err := loader.Load(directory); err == nil {
		t.Fatalf("expected error when the explicit path is a directory")
	}
}

func TestEmbeddedConfigurationProvidesSchemas(t *testing.T) {
	loader := config.NewRootConfigurationLoader("", "")
	source, err := loader.Load("")
	if err != nil {
		t.Fatalf("load embedded configuration: %v", err)
	}
	if source.BaseDirectory() != "" {
		t.Fatalf("expected no base directory for embedded configuration, got %q", source.BaseDirectory())
	}
	rootConfiguration, err := config.LoadRoot(source)
	if err != nil {
		t.Fatalf("parse embedded configuration: %v", err)
	}
	registry, err := rootConfiguration.SchemaRegistry(source.BaseDirectory())
	if err != nil {
		t.Fatalf("build schema registry: %v", err)
	}
	product, ok := registry.Lookup("product")
	if !ok {
		t.Fatalf("expected product schema, got %v", registry.Names())
	}
	rating, ok := product.Field("rating")
	if !ok || !rating.Optional || rating.Type.Kind != schema.KindFloat {
		t.Fatalf("unexpected rating field %+v", rating)
	}
	if !rootConfiguration.Common.RepairEnabled() {
		t.Fatalf("expected repair enabled by default")
	}
	model, ok := rootConfiguration.DefaultModel()
	if !ok || model.ModelID == "" {
		t.Fatalf("expected a default model, got %+v", model)
	}
}

func TestLoadRootAppliesDefaults(t *testing.T) {
	source := config.RootConfigurationSource{
		Reference: "inline",
		Content:   []byte("models:\n  - name: m\n    model_id: m\n    default: true\n"),
	}
	rootConfiguration, err := config.LoadRoot(source)
	if err != nil {
		t.Fatalf("parse configuration: %v", err)
	}
	common := rootConfiguration.Common
	if common.Defaults.Attempts != 3 || common.Defaults.TimeoutSeconds != 60 || common.Defaults.Concurrency != 4 {
		t.Fatalf("unexpected defaults %+v", common.Defaults)
	}
	if common.Metrics.Namespace != "structgen" || common.API.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("unexpected defaults: namespace %q, api key env %q", common.Metrics.Namespace, common.API.APIKeyEnv)
	}
}

func TestLoadRootRejectsMissingDefaultModel(t *testing.T) {
	source := config.RootConfigurationSource{Reference: "inline", Content: []byte("models:\n  - name: m\n")}
	if _, err := config.LoadRoot(source); err == nil {
		t.Fatalf("expected error without a default model")
	}
	if _, err := config.LoadRoot(config.RootConfigurationSource{Reference: "empty"}); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestSchemaRegistryLoadsRelativeFiles(t *testing.T) {
	directory := t.TempDir()
	definition := "fields:\n  - name: title\n    type: string\n"
	if err := os.WriteFile(filepath.Join(directory, "article.yaml"), []byte(definition), filePermissions); err != nil {
		t.Fatalf("write schema file: %v", err)
	}
	rootConfiguration := config.Root{Schemas: []config.SchemaEntry{
		{File: "article.yaml"},
		{File: "article.yaml", Definition: schema.Definition{Name: "headline"}},
	}}
	registry, err := rootConfiguration.SchemaRegistry(directory)
	if err != nil {
		t.Fatalf("build schema registry: %v", err)
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "article" || names[1] != "headline" {
		t.Fatalf("unexpected schema names %v", names)
	}
}

func TestSchemaRegistryErrors(t *testing.T) {
	unnamed := config.Root{Schemas: []config.SchemaEntry{{}}}
	if _, err := unnamed.SchemaRegistry(""); !errors.Is(err, config.ErrUnnamedSchema) {
		t.Fatalf("expected ErrUnnamedSchema, got %v", err)
	}
	entry := config.SchemaEntry{Definition: schema.Definition{Name: "dup", Fields: []schema.FieldDefinition{{Name: "a", Type: "string"}}}}
	duplicated := config.Root{Schemas: []config.SchemaEntry{entry, entry}}
	if _, err := duplicated.SchemaRegistry(""); !errors.Is(err, schema.ErrDuplicateSchema) {
		t.Fatalf("expected ErrDuplicateSchema, got %v", err)
	}
}

func writeConfiguration(t *testing.T, path string, loggingLevel string) {
	t.Helper()
	configurationDirectory := filepath.Dir(path)
	if err := os.MkdirAll(configurationDirectory, directoryPermissions); err != nil {
		t.Fatalf("create configuration directory: %v", err)
	}
	content := fmt.Sprintf(configurationTemplate, sampleAPIEndpoint, sampleAPIKeyEnvironmentVariableName, loggingLevel)
	if err := os.WriteFile(path, []byte(content), filePermissions); err != nil {
		t.Fatalf("write configuration file: %v", err)
	}
}

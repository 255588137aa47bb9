package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/temirov/structgen/internal/schema"
)

const (
	emptyModelsErrorMessage                  = "config.models is empty"
	missingDefaultModelErrorMessage          = "no default model found (set models[].default: true)"
	rootConfigurationEmptyContentErrorFormat = "root configuration %s is empty"
	rootConfigurationUnmarshalErrorFormat    = "unmarshal root configuration %s: %w"
	schemaEntryErrorFormat                   = "schemas[%d]: %w"
	schemaEntryLoadErrorFormat               = "schemas[%d] (%s): %w"

	defaultAttempts          = 3
	defaultTimeoutSeconds    = 60
	defaultConcurrency       = 4
	defaultMetricsNamespace  = "structgen"
	defaultCacheTTLSeconds   = 86400
	defaultLoggingLevel      = "info"
	defaultLoggingFormat     = "console"
	defaultRateLimitBurst    = 1
	defaultAPIKeyEnvVariable = "OPENAI_API_KEY"
	defaultAPIEndpoint       = "https://api.openai.com/v1"
)

var ErrUnnamedSchema = errors.New("schema entry requires a name or a file")

type Root struct {
	Common  Common        `yaml:"common"`
	Models  []Model       `yaml:"models"`
	Schemas []SchemaEntry `yaml:"schemas"`
}

type Common struct {
	API struct {
		Endpoint  string `yaml:"endpoint"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"api"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Defaults struct {
		Attempts       int   `yaml:"attempts"`
		TimeoutSeconds int   `yaml:"timeout_seconds"`
		Repair         *bool `yaml:"repair"`
		Concurrency    int   `yaml:"concurrency"`
	} `yaml:"defaults"`
	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Cache struct {
		Enabled    bool   `yaml:"enabled"`
		RedisAddr  string `yaml:"redis_addr"`
		RedisDB    int    `yaml:"redis_db"`
		TTLSeconds int    `yaml:"ttl_seconds"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"cache"`
	Metrics struct {
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`
}

type Model struct {
	Name                string  `yaml:"name"`
	Provider            string  `yaml:"provider"`
	ModelID             string  `yaml:"model_id"`
	Default             bool    `yaml:"default"`
	SupportsTemperature bool    `yaml:"supports_temperature"`
	DefaultTemperature  float64 `yaml:"default_temperature"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens"`
}

// SchemaEntry is either an inline schema definition or a reference to a definition file.
// Relative file paths resolve against the directory of the configuration file.
type SchemaEntry struct {
	File              string `yaml:"file,omitempty"`
	schema.Definition `yaml:",inline"`
}

// LoadRoot parses the provided configuration source, validates required fields and fills
// defaults for omitted settings.
func LoadRoot(source RootConfigurationSource) (Root, error) {
	if len(source.Content) == 0 {
		return Root{}, fmt.Errorf(rootConfigurationEmptyContentErrorFormat, source.Reference)
	}

	var rootConfiguration Root
	if err := yaml.Unmarshal(source.Content, &rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}

	if len(rootConfiguration.Models) == 0 {
		return Root{}, errors.New(emptyModelsErrorMessage)
	}
	if _, ok := rootConfiguration.DefaultModel(); !ok {
		return Root{}, errors.New(missingDefaultModelErrorMessage)
	}
	rootConfiguration.applyDefaults()
	return rootConfiguration, nil
}

func (root *Root) applyDefaults() {
	common := &root.Common
	if common.API.Endpoint == "" {
		common.API.Endpoint = defaultAPIEndpoint
	}
	if common.API.APIKeyEnv == "" {
		common.API.APIKeyEnv = defaultAPIKeyEnvVariable
	}
	if common.Logging.Level == "" {
		common.Logging.Level = defaultLoggingLevel
	}
	if common.Logging.Format == "" {
		common.Logging.Format = defaultLoggingFormat
	}
	if common.Defaults.Attempts <= 0 {
		common.Defaults.Attempts = defaultAttempts
	}
	if common.Defaults.TimeoutSeconds <= 0 {
		common.Defaults.TimeoutSeconds = defaultTimeoutSeconds
	}
	if common.Defaults.Concurrency <= 0 {
		common.Defaults.Concurrency = defaultConcurrency
	}
	if common.RateLimit.Burst <= 0 {
		common.RateLimit.Burst = defaultRateLimitBurst
	}
	if common.Cache.TTLSeconds <= 0 {
		common.Cache.TTLSeconds = defaultCacheTTLSeconds
	}
	if common.Metrics.Namespace == "" {
		common.Metrics.Namespace = defaultMetricsNamespace
	}
}

// RepairEnabled reports common.defaults.repair, which defaults to true.
func (common Common) RepairEnabled() bool {
	if common.Defaults.Repair == nil {
		return true
	}
	return *common.Defaults.Repair
}

func (root Root) DefaultModel() (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Default {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

func (root Root) FindModel(name string) (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Name == name {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

// SchemaRegistry builds every configured schema. baseDirectory resolves relative file entries.
func (root Root) SchemaRegistry(baseDirectory string) (*schema.Registry, error) {
	registry := schema.NewRegistry()
	for index, entry := range root.Schemas {
		descriptor, err := entry.build(baseDirectory)
		if err != nil {
			if entry.File != "" {
				return nil, fmt.Errorf(schemaEntryLoadErrorFormat, index, entry.File, err)
			}
			return nil, fmt.Errorf(schemaEntryErrorFormat, index, err)
		}
		if err := registry.Register(descriptor); err != nil {
			return nil, fmt.Errorf(schemaEntryErrorFormat, index, err)
		}
	}
	return registry, nil
}

func (entry SchemaEntry) build(baseDirectory string) (*schema.Descriptor, error) {
	if strings.TrimSpace(entry.File) == "" {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, ErrUnnamedSchema
		}
		return entry.Definition.Build()
	}
	path := entry.File
	if !filepath.IsAbs(path) && baseDirectory != "" {
		path = filepath.Join(baseDirectory, path)
	}
	descriptor, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if entry.Name == "" || entry.Name == descriptor.Name() {
		return descriptor, nil
	}
	return schema.New(entry.Name, descriptor.Description(), descriptor.Describe()...)
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EmbeddedRootConfigurationReference identifies the embedded fallback configuration source.
	EmbeddedRootConfigurationReference = "embedded default configuration"
	// ConfigurationPathEnvironmentVariable names a configuration file consulted after the
	// explicit path.
	ConfigurationPathEnvironmentVariable = "STRUCTGEN_CONFIG"

	explicitConfigurationReadErrorFormat = "read configuration %s: %w"
	workingDirectoryErrorFormat          = "determine working directory: %w"
	homeEnvironmentVariable              = "HOME"
	configurationFileName                = "config.yaml"
	homeConfigurationDirectory           = ".structgen"
)

//go:embed default_root_configuration.yaml
var embeddedRootConfigurationBytes []byte

// RootConfigurationSource holds the raw configuration data and its origin.
type RootConfigurationSource struct {
	Reference string
	Content   []byte
}

// BaseDirectory returns the directory holding the configuration file, or an empty string for
// the embedded configuration.
func (source RootConfigurationSource) BaseDirectory() string {
	if source.Reference == EmbeddedRootConfigurationReference || source.Reference == "" {
		return ""
	}
	return filepath.Dir(source.Reference)
}

// RootConfigurationLoader locates the configuration file. Search order: explicit path,
// $STRUCTGEN_CONFIG, ./config.yaml, $HOME/.structgen/config.yaml, embedded default.
type RootConfigurationLoader struct {
	workingDirectory string
	homeDirectory    string
	environmentPath  string
	fileReader       func(string) ([]byte, error)
}

func NewRootConfigurationLoader(workingDirectory string, homeDirectory string) RootConfigurationLoader {
	return RootConfigurationLoader{
		workingDirectory: workingDirectory,
		homeDirectory:    homeDirectory,
		fileReader:       os.ReadFile,
	}
}

// NewDefaultRootConfigurationLoader builds a loader from the process working directory, HOME
// and STRUCTGEN_CONFIG.
func NewDefaultRootConfigurationLoader() (RootConfigurationLoader, error) {
	workingDirectory, err := os.Getwd()
	if err != nil {
		return RootConfigurationLoader{}, fmt.Errorf(workingDirectoryErrorFormat, err)
	}
	loader := NewRootConfigurationLoader(workingDirectory, os.Getenv(homeEnvironmentVariable))
	return loader.WithEnvironmentPath(os.Getenv(ConfigurationPathEnvironmentVariable)), nil
}

// WithEnvironmentPath sets the path taken from STRUCTGEN_CONFIG.
func (loader RootConfigurationLoader) WithEnvironmentPath(path string) RootConfigurationLoader {
	loader.environmentPath = strings.TrimSpace(path)
	return loader
}

type configurationCandidate struct {
	path     string
	required bool
}

// Load returns the first readable candidate. A named file (explicit or from the environment)
// that exists but cannot be read is an error; missing files fall through to the next
// candidate.
func (loader RootConfigurationLoader) Load(explicitPath string) (RootConfigurationSource, error) {
	for _, candidate := range loader.candidates(strings.TrimSpace(explicitPath)) {
		if candidate.path == "" {
			continue
		}
		content, err := loader.fileReader(candidate.path)
		if err == nil {
			return RootConfigurationSource{Reference: candidate.path, Content: content}, nil
		}
		if candidate.required && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
			return RootConfigurationSource{}, fmt.Errorf(explicitConfigurationReadErrorFormat, candidate.path, err)
		}
	}
	return RootConfigurationSource{Reference: EmbeddedRootConfigurationReference, Content: embeddedRootConfigurationBytes}, nil
}

func (loader RootConfigurationLoader) candidates(explicitPath string) []configurationCandidate {
	candidates := []configurationCandidate{
		{path: explicitPath, required: true},
		{path: loader.environmentPath, required: true},
	}
	if loader.workingDirectory != "" {
		candidates = append(candidates, configurationCandidate{path: filepath.Join(loader.workingDirectory, configurationFileName)})
	}
	if loader.homeDirectory != "" {
		candidates = append(candidates, configurationCandidate{path: filepath.Join(loader.homeDirectory, homeConfigurationDirectory, configurationFileName)})
	}
	return candidates
}

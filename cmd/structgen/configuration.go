package structgen

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/temirov/structgen/internal/config"
	"github.com/temirov/structgen/internal/schema"
)

const (
	settingAttempts    = "attempts"
	settingTimeout     = "timeout"
	settingRepair      = "repair"
	settingConcurrency = "concurrency"
	settingModel       = "model"
)

type loadedConfiguration struct {
	root     config.Root
	source   config.RootConfigurationSource
	registry *schema.Registry
}

func loadConfiguration(configurationPath string) (loadedConfiguration, error) {
	configurationLoader, loaderErr := config.NewDefaultRootConfigurationLoader()
	if loaderErr != nil {
		return loadedConfiguration{}, fmt.Errorf(configurationLoaderInitializationErrorFormat, loaderErr)
	}
	configurationSource, sourceErr := configurationLoader.Load(configurationPath)
	if sourceErr != nil {
		return loadedConfiguration{}, fmt.Errorf(configurationSourceResolutionErrorFormat, sourceErr)
	}
	rootConfiguration, loadErr := config.LoadRoot(configurationSource)
	if loadErr != nil {
		return loadedConfiguration{}, fmt.Errorf(rootConfigurationLoadErrorFormat, configurationSource.Reference, loadErr)
	}
	registry, registryErr := rootConfiguration.SchemaRegistry(configurationSource.BaseDirectory())
	if registryErr != nil {
		return loadedConfiguration{}, fmt.Errorf(schemaRegistryErrorFormat, registryErr)
	}
	return loadedConfiguration{root: rootConfiguration, source: configurationSource, registry: registry}, nil
}

// resolveSchema looks the reference up among configured schemas first and falls back to
// reading it as a schema file.
func (loaded loadedConfiguration) resolveSchema(reference string) (*schema.Descriptor, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, errors.New(missingSchemaErrorMessage)
	}
	if descriptor, ok := loaded.registry.Lookup(trimmed); ok {
		return descriptor, nil
	}
	if _, statErr := os.Stat(trimmed); statErr != nil {
		return nil, fmt.Errorf(unknownSchemaErrorFormat, trimmed)
	}
	descriptor, err := schema.LoadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf(loadSchemaFileErrorFormat, trimmed, err)
	}
	return descriptor, nil
}

// runtimeSettings are the per-invocation knobs. Precedence: changed flag, STRUCTGEN_*
// environment variable, config.yaml defaults.
type runtimeSettings struct {
	attempts    int
	timeout     time.Duration
	repair      bool
	concurrency int
	model       string
}

func resolveRuntimeSettings(command *cobra.Command, root config.Root) (runtimeSettings, error) {
	settings := viper.New()
	settings.SetEnvPrefix(environmentPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	settings.SetDefault(settingAttempts, root.Common.Defaults.Attempts)
	settings.SetDefault(settingTimeout, time.Duration(root.Common.Defaults.TimeoutSeconds)*time.Second)
	settings.SetDefault(settingRepair, root.Common.RepairEnabled())
	settings.SetDefault(settingConcurrency, root.Common.Defaults.Concurrency)
	if defaultModel, ok := root.DefaultModel(); ok {
		settings.SetDefault(settingModel, defaultModel.Name)
	}

	for _, flagName := range []string{attemptsFlagName, timeoutFlagName, repairFlagName, concurrencyFlagName, modelFlagName} {
		flag := command.Flags().Lookup(flagName)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := settings.BindPFlag(flagName, flag); err != nil {
			return runtimeSettings{}, fmt.Errorf(bindFlagErrorFormat, flagName, err)
		}
	}

	resolved := runtimeSettings{
		attempts:    settings.GetInt(settingAttempts),
		timeout:     settings.GetDuration(settingTimeout),
		repair:      settings.GetBool(settingRepair),
		concurrency: settings.GetInt(settingConcurrency),
		model:       strings.TrimSpace(settings.GetString(settingModel)),
	}
	if resolved.attempts <= 0 {
		resolved.attempts = root.Common.Defaults.Attempts
	}
	if resolved.timeout <= 0 {
		resolved.timeout = time.Duration(root.Common.Defaults.TimeoutSeconds) * time.Second
	}
	if resolved.concurrency <= 0 {
		resolved.concurrency = root.Common.Defaults.Concurrency
	}
	return resolved, nil
}

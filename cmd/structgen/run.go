package structgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/temirov/structgen/internal/pipeline"
)

type generationOptions struct {
	schemaReference string
	attempts        int
	timeout         time.Duration
	repair          bool
	model           string
	metricsFile     string
	bypassCache     bool
}

type runCommandOptions struct {
	generationOptions
	prompt     string
	promptFile string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	options := &runCommandOptions{}

	command := &cobra.Command{
		Use:   runCommandUse,
		Short: runCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeneration(cmd, root.configPath, *options)
		},
	}
	registerGenerationFlags(command, &options.generationOptions)
	command.Flags().StringVar(&options.prompt, promptFlagName, "", promptFlagUsage)
	command.Flags().StringVar(&options.promptFile, promptFileFlagName, "", promptFileFlagUsage)
	return command
}

func registerGenerationFlags(command *cobra.Command, options *generationOptions) {
	command.Flags().StringVar(&options.schemaReference, schemaFlagName, "", schemaFlagUsage)
	command.Flags().IntVar(&options.attempts, attemptsFlagName, 0, attemptsFlagUsage)
	command.Flags().DurationVar(&options.timeout, timeoutFlagName, 0, timeoutFlagUsage)
	command.Flags().StringVar(&options.model, modelFlagName, "", modelFlagUsage)
	command.Flags().StringVar(&options.metricsFile, metricsFileFlagName, "", metricsFileFlagUsage)
	command.Flags().BoolVar(&options.bypassCache, noCacheFlagName, false, noCacheFlagUsage)
	repairValue := newBoolChoiceValue(&options.repair)
	command.Flags().Var(repairValue, repairFlagName, repairFlagUsage)
	if repairFlag := command.Flags().Lookup(repairFlagName); repairFlag != nil {
		repairFlag.NoOptDefVal = "true"
		repairFlag.DefValue = "true"
	}
}

func runGeneration(command *cobra.Command, configPath string, options runCommandOptions) (runErr error) {
	loaded, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}
	descriptor, err := loaded.resolveSchema(options.schemaReference)
	if err != nil {
		return err
	}
	promptText, err := readPrompt(command.InOrStdin(), options.prompt, options.promptFile)
	if err != nil {
		return err
	}
	settings, err := resolveRuntimeSettings(command, loaded.root)
	if err != nil {
		return err
	}

	env, err := newEnvironment(loaded.root, environmentOptions{model: settings.model, timeout: settings.timeout, bypassCache: options.bypassCache})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.close(options.metricsFile); closeErr != nil && runErr == nil {
			runErr = closeErr
		}
	}()

	result, err := env.orchestrator.ExecuteWith(command.Context(), pipeline.TextPrompt(promptText), descriptor, settings.attempts, settings.repair)
	if err != nil {
		return fmt.Errorf(buildRequestErrorFormat, err)
	}
	if err := writeJSON(command.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf(generationFailedErrorFormat, result.Attempts)
	}
	return nil
}

func readPrompt(stdin io.Reader, prompt string, promptFile string) (string, error) {
	hasPrompt := strings.TrimSpace(prompt) != ""
	hasPromptFile := strings.TrimSpace(promptFile) != ""
	switch {
	case hasPrompt && hasPromptFile:
		return "", errors.New(conflictingPromptErrorMessage)
	case hasPrompt:
		return prompt, nil
	case hasPromptFile:
		content, err := readInput(stdin, promptFile)
		if err != nil {
			return "", fmt.Errorf(readPromptErrorFormat, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			return "", errors.New(missingPromptErrorMessage)
		}
		return string(content), nil
	default:
		return "", errors.New(missingPromptErrorMessage)
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if strings.TrimSpace(path) == standardInputArgument {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeJSON(writer io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf(encodeResultErrorFormat, err)
	}
	if _, err := fmt.Fprintln(writer, string(encoded)); err != nil {
		return fmt.Errorf(writeOutputErrorFormat, err)
	}
	return nil
}

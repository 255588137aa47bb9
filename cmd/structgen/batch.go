package structgen

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/structgen/internal/pipeline"
)

type batchCommandOptions struct {
	generationOptions
	promptsFile string
	concurrency int
}

func newBatchCommand(root *rootOptions) *cobra.Command {
	options := &batchCommandOptions{}

	command := &cobra.Command{
		Use:   batchCommandUse,
		Short: batchCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root.configPath, *options)
		},
	}
	registerGenerationFlags(command, &options.generationOptions)
	command.Flags().StringVar(&options.promptsFile, promptsFileFlagName, standardInputArgument, promptsFileFlagUsage)
	command.Flags().IntVar(&options.concurrency, concurrencyFlagName, 0, concurrencyFlagUsage)
	return command
}

func runBatch(command *cobra.Command, configPath string, options batchCommandOptions) (runErr error) {
	loaded, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}
	descriptor, err := loaded.resolveSchema(options.schemaReference)
	if err != nil {
		return err
	}
	content, err := readInput(command.InOrStdin(), options.promptsFile)
	if err != nil {
		return fmt.Errorf(readPromptsErrorFormat, err)
	}
	prompts, err := splitPrompts(content)
	if err != nil {
		return err
	}
	settings, err := resolveRuntimeSettings(command, loaded.root)
	if err != nil {
		return err
	}

	requests := make([]pipeline.Request, 0, len(prompts))
	for _, promptText := range prompts {
		request, requestErr := pipeline.NewRequest(pipeline.TextPrompt(promptText), descriptor, settings.attempts, settings.repair)
		if requestErr != nil {
			return fmt.Errorf(buildRequestErrorFormat, requestErr)
		}
		requests = append(requests, request)
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

	results := env.orchestrator.ExecuteBatch(command.Context(), requests, settings.concurrency)
	if err := writeJSON(command.OutOrStdout(), results); err != nil {
		return err
	}
	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf(batchFailedErrorFormat, failed, len(results))
	}
	return nil
}

// splitPrompts returns the non-blank lines of content, trimmed.
func splitPrompts(content []byte) ([]string, error) {
	var prompts []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(readPromptsErrorFormat, err)
	}
	if len(prompts) == 0 {
		return nil, errors.New(missingPromptsErrorMessage)
	}
	return prompts, nil
}

package structgen

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/temirov/structgen/internal/parse"
	"github.com/temirov/structgen/internal/validate"
)

type checkCommandOptions struct {
	schemaReference string
}

func newSchemaCommand(root *rootOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   schemaCommandUse,
		Short: schemaCommandShort,
	}
	command.AddCommand(newCheckCommand(root), newShowCommand(root))
	return command
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	options := &checkCommandOptions{}
	command := &cobra.Command{
		Use:   checkCommandUse,
		Short: checkCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckCommand(cmd, root.configPath, options.schemaReference, args[0])
		},
	}
	command.Flags().StringVar(&options.schemaReference, schemaFlagName, "", schemaFlagUsage)
	return command
}

// runCheckCommand runs the same extraction and validation an attempt would, without calling
// a model. The normalized object is printed on success; violations are printed otherwise.
func runCheckCommand(command *cobra.Command, configPath string, schemaReference string, candidatePath string) error {
	loaded, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}
	descriptor, err := loaded.resolveSchema(schemaReference)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(candidatePath)
	if err != nil {
		return fmt.Errorf(readCandidateErrorFormat, candidatePath, err)
	}

	candidate, err := parse.Object(string(content))
	if err != nil {
		return err
	}
	outcome := validate.Validate(candidate, descriptor)
	if !outcome.OK {
		for _, violation := range outcome.Violations {
			if _, writeErr := fmt.Fprintln(command.OutOrStdout(), violation.String()); writeErr != nil {
				return fmt.Errorf(writeOutputErrorFormat, writeErr)
			}
		}
		return errors.New(candidateInvalidErrorMessage)
	}
	return writeJSON(command.OutOrStdout(), outcome.Value)
}

func newShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   showCommandUse,
		Short: showCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowCommand(cmd, root.configPath, args[0])
		},
	}
}

func runShowCommand(command *cobra.Command, configPath string, reference string) error {
	loaded, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}
	descriptor, err := loaded.resolveSchema(reference)
	if err != nil {
		return err
	}
	output := command.OutOrStdout()
	if _, err := fmt.Fprintf(output, "%s\n%s\n\n", descriptor.Name(), descriptor.Guidance()); err != nil {
		return fmt.Errorf(writeOutputErrorFormat, err)
	}
	return writeJSON(output, descriptor.JSONSchema())
}

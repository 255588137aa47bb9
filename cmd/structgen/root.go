package structgen

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the structgen command tree.
func NewRootCommand() *cobra.Command {
	options := &rootOptions{}

	command := &cobra.Command{
		Use:           rootCommandUse,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.PersistentFlags().StringVar(&options.configPath, configFlagName, "", configFlagUsage)

	command.AddCommand(
		newRunCommand(options),
		newBatchCommand(options),
		newListCommand(options),
		newSchemaCommand(options),
	)
	return command
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

package structgen

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   listCommandUse,
		Short: listCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListCommand(cmd, root.configPath)
		},
	}
}

func runListCommand(command *cobra.Command, configPath string) error {
	loaded, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}

	outputWriter := command.OutOrStdout()
	for _, name := range loaded.registry.Names() {
		descriptor, _ := loaded.registry.Lookup(name)
		_, writeErr := fmt.Fprintf(outputWriter, "%s\t(fields=%d)\t%s\n", name, descriptor.Len(), dashIfEmpty(descriptor.Description()))
		if writeErr != nil {
			return fmt.Errorf("write schema listing: %w", writeErr)
		}
	}
	return nil
}

func dashIfEmpty(value string) string {
	if value == "" {
		return dashPlaceholder
	}
	return value
}

package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "investigate",
		Short: "Run due-diligence fraud-risk investigations from the command line",
		Long: "investigate gathers evidence about a party, intermediary or document,\n" +
			"asks the risk model for an assessment and prints the resulting report.\n" +
			"Configuration is read from the same environment as the server.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newSectorsCmd())
	return root
}

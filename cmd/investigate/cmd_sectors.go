package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"diligence/internal/sector"
)

func newSectorsCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "sectors",
		Short: "List the sector policies an investigation can be assessed under",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tALIASES")
			for _, p := range sector.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key, p.Name, strings.Join(p.Aliases, ", "))
				if verbose {
					fmt.Fprintf(w, "\t%s\t\n", p.Description)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nUse --sector %s to let the model infer the sector.\n", sector.AutoDetect)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include policy descriptions")
	return cmd
}

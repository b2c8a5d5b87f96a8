package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/version"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yard",
		Short: "modelyard: train, track, promote and serve binary classifiers",
		Long:  "modelyard records training runs, promotes one model per name to current, and serves it over HTTP with hot reload.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newPromoteCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDashboardCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSmokeCmd())
	cmd.AddCommand(newE2ECmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := version.Get()
			if asJSON {
				data, err := json.MarshalIndent(b, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "yard %s (commit: %s, built: %s, %s %s)\n", b.Package, b.Git, b.Date, b.Go, b.Platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print build info as JSON")
	return cmd
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

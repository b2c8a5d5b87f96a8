package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manifest pointer index commands",
	}

	cmd.AddCommand(newIndexRebuildCmd())
	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild missing run pointers from the run store",
		Long:  "Writes a reconciled manifest and pointer for every run without a readable pointer, then points latest at the newest run. Existing pointers are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.index.Rebuild(cmd.Context(), a.store, a.store.Identity())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d runs, wrote %d pointers\n", rep.Scanned, rep.Written)
			if rep.Latest != "" {
				fmt.Fprintf(out, "Latest: %s\n", rep.Latest)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

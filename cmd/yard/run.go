package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/dashboard"
	"github.com/zulandar/modelyard/internal/pipeline"
	"github.com/zulandar/modelyard/internal/tracking"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect and record runs",
	}

	cmd.AddCommand(newRunDemoCmd())
	cmd.AddCommand(newRunListCmd())
	cmd.AddCommand(newRunShowCmd())
	cmd.AddCommand(newRunLatestCmd())
	return cmd
}

func newRunDemoCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Insert a demo run with fixed metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := pipeline.DemoRun(cmd.Context(), a.pipelineEnv())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demo run inserted: %s\n", id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newRunListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		offset     int
		metrics    bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := dashboard.ListRuns(cmd.Context(), dashboard.Deps{Runs: a.store, Index: a.index}, tracking.ListOpts{
				Limit:          limit,
				Offset:         offset,
				IncludeMetrics: metrics,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			printRunTable(cmd.OutOrStdout(), page.Items, metrics)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&limit, "limit", tracking.DefaultListLimit, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "include metrics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printRunTable(out io.Writer, runs []tracking.RunSummary, withMetrics bool) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "RUN_ID\tCREATED\tKIND\tCOMMIT\tRUN_DIR"
	if withMetrics {
		header += "\tMETRICS"
	}
	fmt.Fprintln(w, header)
	for _, r := range runs {
		commit := "-"
		if r.GitCommit != nil && len(*r.GitCommit) >= 7 {
			commit = (*r.GitCommit)[:7]
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
			r.RunID, r.CreatedAt.Format(time.DateTime), orDash(r.Kind), commit, orDash(r.RunDirName))
		if withMetrics {
			line += "\t" + formatMetrics(r.Metrics)
		}
		fmt.Fprintln(w, line)
	}
	w.Flush()
}

func newRunShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show a run with metrics, artifacts and manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return showRun(cmd, a, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newRunLatestCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			id, ok, err := a.store.LatestRunID(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no runs recorded yet")
			}
			return showRun(cmd, a, id)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func showRun(cmd *cobra.Command, a *app, runID string) error {
	view, ok, err := dashboard.GetRun(cmd.Context(), dashboard.Deps{
		Runs:         a.store,
		Index:        a.index,
		ArtifactsDir: a.cfg.ArtifactsDir,
	}, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	return printJSON(cmd.OutOrStdout(), view)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatMetrics renders metrics as sorted key=value pairs.
func formatMetrics(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, m[k]))
	}
	return strings.Join(parts, " ")
}

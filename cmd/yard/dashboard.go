package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only dashboard API",
		Long:  "Serves run history, run details, artifact downloads and a promotion event stream, without the prediction endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		Deps: dashboard.Deps{
			Runs:         a.store,
			Index:        a.index,
			Models:       a.reg,
			ArtifactsDir: a.cfg.ArtifactsDir,
			Logger:       a.log,
		},
		Addr: fmt.Sprintf("%s:%d", a.cfg.Server.Host, port),
		Out:  cmd.OutOrStdout(),
	})
}

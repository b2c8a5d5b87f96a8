package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/dashboard"
	"github.com/zulandar/modelyard/internal/manifest"
	"github.com/zulandar/modelyard/internal/serving"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the current model over HTTP",
		Long: `Starts the prediction API (/health, /version, /model, /predict) together
with the dashboard API. The current model reloads automatically when it is
promoted or its file changes; --watch adds file-system notifications so
reloads happen before the next request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, host, port, watch)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&host, "host", "", "bind host (default: server.host from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "bind port (default: server.port from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "invalidate the model cache on file changes")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, host string, port int, watch bool) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if host != "" {
		a.cfg.Server.Host = host
	}
	if port != 0 {
		a.cfg.Server.Port = port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	cache := serving.NewModelCache(a.reg, a.cfg.ModelName)
	if watch {
		if err := serving.Watch(ctx, cache, a.log, a.cfg.CurrentModelPathFor(a.cfg.ModelName)); err != nil {
			return err
		}
	}

	if a.cfg.Index.ReconcileSchedule != "" {
		r := &manifest.Reconciler{
			Index:         a.index,
			Runs:          a.store,
			StoreLocation: a.store.Identity(),
			Schedule:      a.cfg.Index.ReconcileSchedule,
			Logger:        a.log,
		}
		go r.Run(ctx)
	}

	dash := dashboard.Deps{
		Runs:         a.store,
		Index:        a.index,
		Models:       a.reg,
		ArtifactsDir: a.cfg.ArtifactsDir,
		Logger:       a.log,
	}
	return serving.Start(ctx, serving.StartOpts{
		Deps: serving.Deps{
			Models: a.reg,
			Cache:  cache,
			Logger: a.log,
			Mount:  []func(gin.IRouter){func(r gin.IRouter) { dashboard.RegisterRoutes(r, dash) }},
		},
		Addr: a.cfg.Addr(),
		Out:  cmd.OutOrStdout(),
	})
}

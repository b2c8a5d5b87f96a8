package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/pipeline"
	"github.com/zulandar/modelyard/internal/serving"
	"github.com/zulandar/modelyard/internal/smoke"
)

type e2eOpts struct {
	host          string
	port          int
	skipTrain     bool
	noAutoPromote bool
	skipServe     bool
	timeout       time.Duration
	retries       int
	retryDelay    time.Duration
}

func newE2ECmd() *cobra.Command {
	var (
		configPath string
		opts       e2eOpts
	)

	cmd := &cobra.Command{
		Use:   "e2e",
		Short: "One-shot check: init, train, ensure a current model, serve and smoke",
		Long: `Initializes the run store, trains a dummy model (auto-promoting unless
--no-auto-promote), promotes the latest run if there is still no current model,
then starts the API in-process, smoke-checks /health and /predict and shuts it
down again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE2E(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.host, "host", "", "bind host (default: server.host from config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "bind port (default: server.port from config)")
	cmd.Flags().BoolVar(&opts.skipTrain, "skip-train", false, "skip dummy training")
	cmd.Flags().BoolVar(&opts.noAutoPromote, "no-auto-promote", false, "train without auto-promotion")
	cmd.Flags().BoolVar(&opts.skipServe, "skip-serve", false, "stop after ensuring a current model")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 8*time.Second, "per-request smoke timeout")
	cmd.Flags().IntVar(&opts.retries, "retries", 30, "smoke retries per request")
	cmd.Flags().DurationVar(&opts.retryDelay, "retry-delay", 500*time.Millisecond, "delay between smoke retries")
	return cmd
}

func runE2E(cmd *cobra.Command, configPath string, opts e2eOpts) error {
	out := cmd.OutOrStdout()

	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if opts.host != "" {
		a.cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		a.cfg.Server.Port = opts.port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintln(out, "[e2e] step 1/4: init run store")
	fmt.Fprintf(out, "[e2e] store OK: %s\n", a.store.Identity())

	if opts.skipTrain {
		fmt.Fprintln(out, "[e2e] step 2/4: skip train")
	} else {
		fmt.Fprintln(out, "[e2e] step 2/4: train dummy")
		dummy := pipeline.DefaultDummyOpts()
		dummy.AutoPromote = !opts.noAutoPromote
		res, err := pipeline.TrainDummy(ctx, a.pipelineEnv(), dummy)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[e2e] train dummy: run_id=%s promoted=%t reason=%s\n", res.RunID, res.Promoted, res.Reason)
	}

	fmt.Fprintln(out, "[e2e] step 3/4: ensure current model")
	_, ok, err := a.reg.LoadCurrent(ctx, "")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "[e2e] no current model, promoting latest run")
		p, err := promoteRun(ctx, a, "", "", "")
		if err != nil {
			return fmt.Errorf("promote latest: %w", err)
		}
		fmt.Fprintf(out, "[e2e] promoted run %s\n", p.runID)
		if _, ok, err = a.reg.LoadCurrent(ctx, ""); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("current model still missing after promoting run %s", p.runID)
		}
	}
	fmt.Fprintf(out, "[e2e] current model OK: %s\n", a.cfg.CurrentModelPathFor(""))

	if opts.skipServe {
		fmt.Fprintln(out, "[e2e] step 4/4: skip serve and smoke")
		fmt.Fprintln(out, "[e2e] done.")
		return nil
	}

	fmt.Fprintln(out, "[e2e] step 4/4: serve and smoke")
	if err := serveAndSmoke(ctx, cmd, a, opts); err != nil {
		return err
	}
	fmt.Fprintln(out, "[e2e] OK")
	return nil
}

// serveAndSmoke runs the API on a child context, smoke-checks it and
// waits for shutdown. A server that exits early cancels the smoke check.
func serveAndSmoke(ctx context.Context, cmd *cobra.Command, a *app, opts e2eOpts) error {
	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serving.Start(srvCtx, serving.StartOpts{
			Deps: serving.Deps{
				Models: a.reg,
				Cache:  serving.NewModelCache(a.reg, a.cfg.ModelName),
				Logger: a.log,
			},
			Addr: a.cfg.Addr(),
			Out:  cmd.OutOrStdout(),
		})
		stop()
	}()

	code := smoke.Run(srvCtx, smoke.Opts{
		BaseURL:          "http://" + a.cfg.Addr(),
		Timeout:          opts.timeout,
		Retries:          opts.retries,
		RetryDelay:       opts.retryDelay,
		FailOnPredict404: true,
		Out:              cmd.OutOrStdout(),
		Err:              cmd.ErrOrStderr(),
	})
	stop()

	if err := <-errCh; err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("smoke check failed")
	}
	return nil
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/smoke"
)

func newSmokeCmd() *cobra.Command {
	var (
		configPath string
		opts       smoke.Opts
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check a running server: GET /health, then POST /predict",
		Long:  "Exits non-zero when /health fails, or when /predict fails unless --allow-predict-failure is set. A 404 from /predict (no current model) is a warning unless --fail-on-predict-404 is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.BaseURL == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				opts.BaseURL = "http://" + cfg.Addr()
			}
			opts.Out = cmd.OutOrStdout()
			opts.Err = cmd.ErrOrStderr()
			if code := smoke.Run(cmd.Context(), opts); code != 0 {
				return fmt.Errorf("smoke check failed")
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "server URL (default: from config server.host/port)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.Flags().IntVar(&opts.Retries, "retries", 0, "retries per request")
	cmd.Flags().DurationVar(&opts.RetryDelay, "retry-delay", 500*time.Millisecond, "delay between retries")
	cmd.Flags().StringVar(&opts.HealthPath, "health-path", "/health", "health endpoint path")
	cmd.Flags().StringVar(&opts.PredictPath, "predict-path", "/predict", "predict endpoint path")
	cmd.Flags().Float64SliceVar(&opts.Features, "features", smoke.DefaultFeatures, "feature vector for /predict")
	cmd.Flags().BoolVar(&opts.SkipPredict, "skip-predict", false, "only check /health")
	cmd.Flags().BoolVar(&opts.AllowPredictFailure, "allow-predict-failure", false, "warn instead of failing on /predict errors")
	cmd.Flags().BoolVar(&opts.FailOnPredict404, "fail-on-predict-404", false, "fail when no model is promoted")
	return cmd
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/pipeline"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training pipeline",
	}

	cmd.AddCommand(newTrainDummyCmd())
	cmd.AddCommand(newTrainLogisticCmd())
	return cmd
}

func newTrainDummyCmd() *cobra.Command {
	var (
		configPath string
		noPromote  bool
		asJSON     bool
	)
	opts := pipeline.DefaultDummyOpts()

	cmd := &cobra.Command{
		Use:   "dummy",
		Short: "Train a random linear model on synthetic data",
		Long:  "Draws a random linear model, evaluates it on synthetic data, records the run and auto-promotes it when the promotion policy allows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			opts.AutoPromote = !noPromote
			res, err := pipeline.TrainDummy(cmd.Context(), a.pipelineEnv(), opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().IntVar(&opts.NSamples, "n-samples", opts.NSamples, "evaluation samples")
	cmd.Flags().IntVar(&opts.NFeatures, "n-features", opts.NFeatures, "feature count")
	cmd.Flags().BoolVar(&noPromote, "no-auto-promote", false, "never promote the candidate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newTrainLogisticCmd() *cobra.Command {
	var (
		configPath string
		noPromote  bool
		asJSON     bool
	)
	opts := pipeline.DefaultLogisticOpts()

	cmd := &cobra.Command{
		Use:   "logistic",
		Short: "Train a scaled logistic regression on a synthetic tabular dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			opts.AutoPromote = !noPromote
			res, err := pipeline.TrainLogistic(cmd.Context(), a.pipelineEnv(), opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().IntVar(&opts.NSamples, "n-samples", opts.NSamples, "dataset rows")
	cmd.Flags().IntVar(&opts.NFeatures, "n-features", opts.NFeatures, "feature count")
	cmd.Flags().Float64Var(&opts.TestSize, "test-size", opts.TestSize, "held-out fraction")
	cmd.Flags().IntVar(&opts.Epochs, "epochs", opts.Epochs, "gradient descent epochs")
	cmd.Flags().Float64Var(&opts.LearningRate, "learning-rate", opts.LearningRate, "gradient descent step size")
	cmd.Flags().Float64Var(&opts.L2, "l2", opts.L2, "L2 penalty")
	cmd.Flags().BoolVar(&noPromote, "no-auto-promote", false, "never promote the candidate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printResult(out io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "run_id:    %s\n", res.RunID)
	fmt.Fprintf(out, "candidate: %s\n", res.CandidatePath)
	fmt.Fprintf(out, "manifest:  %s\n", res.ManifestPath)
	if res.DatasetMetaPath != "" {
		fmt.Fprintf(out, "dataset:   %s\n", res.DatasetMetaPath)
	}
	fmt.Fprintf(out, "promoted:  %t (%s)\n", res.Promoted, res.Reason)
	fmt.Fprintf(out, "metrics:   %s\n", formatMetrics(res.Metrics))
	return nil
}

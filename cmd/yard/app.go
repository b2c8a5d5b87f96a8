package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/manifest"
	"github.com/zulandar/modelyard/internal/notify"
	"github.com/zulandar/modelyard/internal/notify/discord"
	"github.com/zulandar/modelyard/internal/notify/slack"
	"github.com/zulandar/modelyard/internal/pipeline"
	"github.com/zulandar/modelyard/internal/registry"
	"github.com/zulandar/modelyard/internal/tracking"
)

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", config.DefaultPath, "path to modelyard config file")
}

// app is the wiring shared by every command that touches the run store.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *tracking.Store
	index *manifest.Index
	reg   *registry.Registry

	logCloser io.Closer
}

// openApp loads config, builds the logger (writing to the command's
// stderr), opens and migrates the run store and wires the registry.
func openApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	index := manifest.New(cfg.ArtifactsDir)
	store, err := tracking.Open(cfg.Store, tracking.WithLatestSource(index))
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open run store: %w", err)
	}

	reg := registry.New(store, cfg,
		registry.WithNotifier(newNotifier(cfg, log)),
		registry.WithLogger(log),
	)
	return &app{cfg: cfg, log: log, store: store, index: index, reg: reg, logCloser: closer}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close run store")
	}
	a.logCloser.Close()
}

func (a *app) pipelineEnv() *pipeline.Env {
	return &pipeline.Env{
		Store:        a.store,
		Index:        a.index,
		Registry:     a.reg,
		ArtifactsDir: a.cfg.ArtifactsDir,
		ModelName:    a.cfg.ModelName,
		Logger:       a.log,
	}
}

// newNotifier fans out to every configured chat target. A target that
// cannot be built is logged and skipped.
func newNotifier(cfg *config.Config, log zerolog.Logger) notify.Notifier {
	var targets notify.Multi
	if c := cfg.Notify.Slack; c.Enabled() {
		n, err := slack.New(slack.Opts{Token: c.Token, ChannelID: c.ChannelID})
		if err != nil {
			log.Warn().Err(err).Msg("slack notifications disabled")
		} else {
			targets = append(targets, n)
		}
	}
	if c := cfg.Notify.Discord; c.Enabled() {
		n, err := discord.New(discord.Opts{Token: c.Token, ChannelID: c.ChannelID})
		if err != nil {
			log.Warn().Err(err).Msg("discord notifications disabled")
		} else {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return notify.Nop{}
	}
	return targets
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

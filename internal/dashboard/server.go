package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/modelyard/internal/manifest"
	"github.com/zulandar/modelyard/internal/registry"
	"github.com/zulandar/modelyard/internal/tracking"
)

// RunReader is the read side of the run store.
type RunReader interface {
	ListRuns(ctx context.Context, opts tracking.ListOpts) ([]tracking.RunSummary, error)
	GetRunDetail(ctx context.Context, runID string) (*tracking.RunDetail, bool, error)
	LatestRunID(ctx context.Context) (string, bool, error)
}

// ModelInfo looks up the current registry entry.
type ModelInfo interface {
	CurrentInfo(ctx context.Context, name string) (*registry.Info, bool, error)
	DefaultName() string
}

// Deps are the collaborators of the dashboard routes.
type Deps struct {
	Runs         RunReader
	Index        *manifest.Index
	Models       ModelInfo
	ArtifactsDir string
	Logger       zerolog.Logger

	// SSE timings; zero means the defaults (3s poll, 15s heartbeat).
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Deps
	Addr string
	Out  io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Runs == nil {
		return fmt.Errorf("dashboard: run store is required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, opts.Deps)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard API running at http://%s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

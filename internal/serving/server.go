// Package serving is the HTTP prediction endpoint: health, version, current
// model info and predict, answered from a hot-reloading model cache.
package serving

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/modelyard/internal/registry"
)

// ModelInfo looks up the current registry entry.
type ModelInfo interface {
	CurrentInfo(ctx context.Context, name string) (*registry.Info, bool, error)
	DefaultName() string
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Models ModelInfo
	Cache  *ModelCache
	Logger zerolog.Logger

	// Mount registers extra route groups (the dashboard API) on the same
	// router.
	Mount []func(gin.IRouter)
}

// NewRouter builds the gin engine with all serving routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(deps.Logger))

	router.GET("/health", handleHealth())
	router.GET("/version", handleVersion())
	router.GET("/model", handleModel(deps.Models))
	router.POST("/predict", handlePredict(deps.Cache, deps.Logger))

	for _, m := range deps.Mount {
		m(router)
	}
	return router
}

// StartOpts holds configuration for the serving process.
type StartOpts struct {
	Deps
	Addr string
	Out  io.Writer
}

// Start runs the HTTP server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Models == nil || opts.Cache == nil {
		return fmt.Errorf("serving: models and cache are required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8000"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts.Deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Serving at http://%s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// accessLog logs one line per request.
func accessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

package dashboard

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/modelyard/internal/fsutil"
	"github.com/zulandar/modelyard/internal/tracking"
)

// maxListLimit caps the page size of GET /runs.
const maxListLimit = 500

// RegisterRoutes sets up all dashboard API routes on r.
func RegisterRoutes(r gin.IRouter, deps Deps) {
	r.GET("/runs", handleRunList(deps))
	r.GET("/runs/latest", handleLatestRun(deps))
	r.GET("/runs/:id", handleRunDetail(deps))
	r.GET("/runs/:id/artifacts/:index", handleArtifact(deps))
	r.GET("/api/events", handleSSE(deps))
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

func handleRunList(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit", tracking.DefaultListLimit)
		if err != nil || limit < 1 || limit > maxListLimit {
			abortError(c, http.StatusBadRequest, "bad_request", "limit must be between 1 and 500")
			return
		}
		offset, err := queryInt(c, "offset", 0)
		if err != nil || offset < 0 {
			abortError(c, http.StatusBadRequest, "bad_request", "offset must be a non-negative integer")
			return
		}
		includeMetrics, err := strconv.ParseBool(c.DefaultQuery("include_metrics", "false"))
		if err != nil {
			abortError(c, http.StatusBadRequest, "bad_request", "include_metrics must be a boolean")
			return
		}

		page, err := ListRuns(c.Request.Context(), deps, tracking.ListOpts{
			Limit:          limit,
			Offset:         offset,
			IncludeMetrics: includeMetrics,
		})
		if err != nil {
			deps.Logger.Error().Err(err).Msg("list runs")
			abortError(c, http.StatusInternalServerError, "internal_error", "run store unavailable")
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func handleLatestRun(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok, err := deps.Runs.LatestRunID(c.Request.Context())
		if err != nil {
			deps.Logger.Error().Err(err).Msg("latest run")
			abortError(c, http.StatusInternalServerError, "internal_error", "run store unavailable")
			return
		}
		if !ok {
			abortError(c, http.StatusNotFound, "not_found", "no runs recorded yet")
			return
		}
		renderRun(c, deps, id)
	}
}

func handleRunDetail(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderRun(c, deps, c.Param("id"))
	}
}

func renderRun(c *gin.Context, deps Deps, runID string) {
	view, ok, err := GetRun(c.Request.Context(), deps, runID)
	if err != nil {
		deps.Logger.Error().Err(err).Str("run_id", runID).Msg("get run")
		abortError(c, http.StatusInternalServerError, "internal_error", "run store unavailable")
		return
	}
	if !ok {
		abortError(c, http.StatusNotFound, "not_found", "run not found")
		return
	}
	c.JSON(http.StatusOK, view)
}

func handleArtifact(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		idx, err := strconv.Atoi(c.Param("index"))
		if err != nil || idx < 0 {
			abortError(c, http.StatusBadRequest, "bad_request", "artifact index must be a non-negative integer")
			return
		}
		detail, ok, err := deps.Runs.GetRunDetail(c.Request.Context(), c.Param("id"))
		if err != nil {
			deps.Logger.Error().Err(err).Msg("get run detail")
			abortError(c, http.StatusInternalServerError, "internal_error", "run store unavailable")
			return
		}
		if !ok {
			abortError(c, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if idx >= len(detail.Artifacts) {
			abortError(c, http.StatusNotFound, "not_found", "artifact not found")
			return
		}

		path, ok := ArtifactFile(deps.ArtifactsDir, detail.Artifacts[idx].Path)
		if !ok {
			abortError(c, http.StatusNotFound, "artifact_missing", "artifact file no longer exists")
			return
		}
		c.FileAttachment(path, filepath.Base(path))
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v, ok := c.GetQuery(key)
	if !ok || v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// ArtifactFile resolves a recorded artifact path to an existing regular
// file: as recorded, then relative to the artifacts root.
func ArtifactFile(artifactsDir, recorded string) (string, bool) {
	for _, p := range artifactCandidates(artifactsDir, recorded) {
		if _, ok := fsutil.IsRegular(p); ok {
			return p, true
		}
	}
	return "", false
}

package serving

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/version"
)

// Error codes returned in the error envelope.
const (
	CodeNoCurrentModel  = "no_current_model"
	CodeModelLoadFailed = "model_load_failed"
	CodeFeatureMismatch = "feature_mismatch"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal_error"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// abortError writes {"error":{"code","message"}}. message must not carry
// file paths or driver errors.
func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	}
}

type modelResponse struct {
	Exists    bool               `json:"exists"`
	Name      string             `json:"name"`
	Stage     string             `json:"stage,omitempty"`
	RunID     string             `json:"run_id,omitempty"`
	Path      string             `json:"path,omitempty"`
	CreatedAt *time.Time         `json:"created_at,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

func handleModel(models ModelInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.DefaultQuery("name", models.DefaultName())
		info, ok, err := models.CurrentInfo(c.Request.Context(), name)
		if err != nil {
			abortError(c, http.StatusInternalServerError, CodeInternal, "run store unavailable")
			return
		}
		if !ok {
			c.JSON(http.StatusOK, modelResponse{Exists: false, Name: name})
			return
		}
		c.JSON(http.StatusOK, modelResponse{
			Exists:    true,
			Name:      info.Name,
			Stage:     info.Stage,
			RunID:     info.RunID,
			Path:      info.Path,
			CreatedAt: &info.CreatedAt,
			Metrics:   info.Metrics,
		})
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	PWin  float64 `json:"p_win"`
	RunID string  `json:"run_id"`
}

func handlePredict(cache *ModelCache, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req predictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, CodeBadRequest, "body must be {\"features\": [numbers]}")
			return
		}
		if req.Features == nil {
			abortError(c, http.StatusBadRequest, CodeBadRequest, "features is required")
			return
		}

		entry, ok, err := cache.Get(c.Request.Context())
		switch {
		case errors.Is(err, ErrModelLoadFailed):
			log.Error().Err(err).Msg("load current model")
			abortError(c, http.StatusServiceUnavailable, CodeModelLoadFailed, "current model could not be loaded")
			return
		case err != nil:
			log.Error().Err(err).Msg("resolve current model")
			abortError(c, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		case !ok:
			abortError(c, http.StatusNotFound, CodeNoCurrentModel, "no model has been promoted yet; run `yard promote`")
			return
		}

		if err := classifier.Check(entry.Model, req.Features); err != nil {
			if errors.Is(err, classifier.ErrFeatureMismatch) {
				abortError(c, http.StatusUnprocessableEntity, CodeFeatureMismatch, err.Error())
			} else {
				abortError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			}
			return
		}
		p, err := entry.Model.PredictProbability(req.Features)
		if errors.Is(err, classifier.ErrFeatureMismatch) {
			abortError(c, http.StatusUnprocessableEntity, CodeFeatureMismatch, err.Error())
			return
		}
		if err != nil {
			log.Error().Err(err).Str("run_id", entry.Info.RunID).Msg("predict")
			abortError(c, http.StatusInternalServerError, CodeInternal, "prediction failed")
			return
		}
		c.JSON(http.StatusOK, predictResponse{PWin: p, RunID: entry.Info.RunID})
	}
}

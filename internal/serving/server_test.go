package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/gitinfo"
	"github.com/zulandar/modelyard/internal/registry"
	"github.com/zulandar/modelyard/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	dir    string
	cfg    *config.Config
	store  *tracking.Store
	reg    *registry.Registry
	cache  *ModelCache
	router *gin.Engine
}

func newHarness(t *testing.T, mount ...func(gin.IRouter)) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Store:            config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "runs.db")},
		ArtifactsDir:     filepath.Join(dir, "artifacts"),
		CurrentModelPath: filepath.Join(dir, "artifacts", "models", "current.json"),
		ModelName:        "default",
	}
	require.NoError(t, cfg.EnsureDirs())
	store, err := tracking.Open(cfg.Store, tracking.WithGitProvider(gitinfo.Static{}))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, cfg)
	cache := NewModelCache(reg, "")
	return &harness{
		dir:   dir,
		cfg:   cfg,
		store: store,
		reg:   reg,
		cache: cache,
		router: NewRouter(Deps{
			Models: reg,
			Cache:  cache,
			Logger: zerolog.Nop(),
			Mount:  mount,
		}),
	}
}

func (h *harness) promote(t *testing.T, runID string, m classifier.Classifier) {
	t.Helper()
	src := filepath.Join(h.dir, "artifacts", "models", "candidates", runID+".json")
	require.NoError(t, classifier.Save(src, m))
	_, err := h.reg.Promote(context.Background(), runID, src, map[string]float64{"bal_acc": 0.7}, "")
	require.NoError(t, err)
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "modelyard-api", body["service"])
	for _, k := range []string{"package", "git", "go", "platform"} {
		assert.Contains(t, body, k)
	}
}

func TestModel_NoneThenPromoted(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/model", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, "default", body["name"])

	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}})
	w, body = h.do(t, http.MethodGet, "/model", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "r1", body["run_id"])
	assert.Equal(t, "current", body["stage"])
	assert.Equal(t, map[string]any{"bal_acc": 0.7}, body["metrics"])
}

func TestPredict_NoCurrentModel(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(t, http.MethodPost, "/predict", `{"features":[1,2]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNoCurrentModel, errorCode(body))
}

func TestPredict_OK(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1, 1}})

	w, body := h.do(t, http.MethodPost, "/predict", `{"features":[0,0]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 0.5, body["p_win"], 1e-9)
	assert.Equal(t, "r1", body["run_id"])
}

func TestPredict_BadRequest(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}})

	for _, body := range []string{`not json`, `{}`, `{"features":"x"}`} {
		w, resp := h.do(t, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, CodeBadRequest, errorCode(resp), body)
	}
}

func TestPredict_FeatureMismatch(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Logistic{
		Mean:    []float64{0, 0, 0},
		Scale:   []float64{1, 1, 1},
		Weights: []float64{1, 1, 1},
	})

	w, body := h.do(t, http.MethodPost, "/predict", `{"features":[1,2]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeFeatureMismatch, errorCode(body))
}

func TestPredict_LoadFailedIsSanitizedAndRecovers(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}})
	path := h.cfg.CurrentModelPath

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	w, body := h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeModelLoadFailed, errorCode(body))
	assert.NotContains(t, w.Body.String(), h.dir, "no file paths in error detail")

	require.NoError(t, classifier.Save(path, &classifier.Linear{Weights: []float64{1}}))
	later = later.Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	w, _ = h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPredict_HotReloadOnNewerFile(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}, Bias: 0})

	_, body := h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.InDelta(t, 0.5, body["p_win"], 1e-9)

	path := h.cfg.CurrentModelPath
	require.NoError(t, classifier.Save(path, &classifier.Linear{Weights: []float64{1}, Bias: 2}))
	later := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	_, body = h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Greater(t, body["p_win"].(float64), 0.8, "new model served without restart")
	assert.EqualValues(t, 2, h.cache.Loads())
}

func TestPredict_RunIDChangeForcesReload(t *testing.T) {
	h := newHarness(t)
	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}})

	_, body := h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, "r1", body["run_id"])

	// Same file, same mtime, new pointer.
	require.NoError(t, h.store.UpsertRegistryEntry(context.Background(), "default", tracking.StageCurrent, "r2", h.cfg.CurrentModelPath, nil))

	_, body = h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, "r2", body["run_id"])
	assert.EqualValues(t, 2, h.cache.Loads())
}

func TestPredict_PromotionVisibleToNextRequest(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, CodeNoCurrentModel, errorCode(body))

	h.promote(t, "r1", &classifier.Linear{Weights: []float64{1}})
	w, body := h.do(t, http.MethodPost, "/predict", `{"features":[0]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", body["run_id"])
}

func TestNewRouter_Mount(t *testing.T) {
	h := newHarness(t, func(r gin.IRouter) {
		r.GET("/extra", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	})
	w, body := h.do(t, http.MethodGet, "/extra", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
}

func TestStart_RequiresDeps(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "required"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, StartOpts{
			Deps: Deps{Models: h.reg, Cache: h.cache, Logger: zerolog.Nop()},
			Addr: "127.0.0.1:0",
		})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

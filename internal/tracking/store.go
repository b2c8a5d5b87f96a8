// Package tracking is the run store: runs, metrics, artifacts and the
// model registry table.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/db"
	"github.com/zulandar/modelyard/internal/gitinfo"
	"github.com/zulandar/modelyard/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicateRun is returned by CreateRun when the run_id exists.
	ErrDuplicateRun = errors.New("duplicate run")
	// ErrStoreUnavailable wraps every failure of the underlying database.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LatestRunSource is a cheap, store-independent "latest run" lookup,
// typically the manifest pointer index.
type LatestRunSource interface {
	LatestRunID() (string, bool)
}

// Store persists runs, metrics, artifacts and registry entries.
type Store struct {
	db       *gorm.DB
	identity string
	git      gitinfo.Provider
	latest   LatestRunSource
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithGitProvider sets the provenance source used by CreateRun.
func WithGitProvider(p gitinfo.Provider) Option {
	return func(s *Store) { s.git = p }
}

// WithLatestSource sets the pointer index consulted by LatestRunID.
func WithLatestSource(src LatestRunSource) Option {
	return func(s *Store) { s.latest = src }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.StoreConfig, opts ...Option) (*Store, error) {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, unavailable("open", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		db.Close(gdb)
		return nil, unavailable("migrate", err)
	}
	return New(gdb, db.Identity(cfg), opts...), nil
}

// New wraps an already migrated connection.
func New(gdb *gorm.DB, identity string, opts ...Option) *Store {
	s := &Store{
		db:       gdb,
		identity: identity,
		git:      gitinfo.Command{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetLatestSource attaches the pointer index after construction.
func (s *Store) SetLatestSource(src LatestRunSource) { s.latest = src }

// Identity returns the store's database identity.
func (s *Store) Identity() string { return s.identity }

// Close releases the connection pool.
func (s *Store) Close() error { return db.Close(s.db) }

func unavailable(op string, err error) error {
	return fmt.Errorf("tracking: %s: %w: %w", op, ErrStoreUnavailable, err)
}

// CreateRun records a new run. Provenance comes from the git provider and
// is stored as null/false when unavailable.
func (s *Store) CreateRun(ctx context.Context, runID string, params map[string]any, note string) error {
	if runID == "" {
		return fmt.Errorf("tracking: create run: run_id is required")
	}
	if _, err := json.Marshal(params); err != nil {
		return fmt.Errorf("tracking: create run %s: params are not JSON-serializable: %w", runID, err)
	}

	info := s.git.Info(ctx)
	row := models.Run{
		RunID:     runID,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		GitDirty:  info.Dirty,
		Params:    datatypes.JSONMap(params),
	}
	if row.Params == nil {
		row.Params = datatypes.JSONMap{}
	}
	if info.Commit != "" {
		row.GitCommit = &info.Commit
	}
	if info.Branch != "" {
		row.GitBranch = &info.Branch
	}
	if note != "" {
		row.Note = &note
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Run{}).Where("run_id = ?", runID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateRun
		}
		return tx.Create(&row).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateRun), errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("tracking: create run %s: %w", runID, ErrDuplicateRun)
	default:
		return unavailable("create run "+runID, err)
	}
}

// LogMetric upserts a metric value. The run does not need to exist.
func (s *Store) LogMetric(ctx context.Context, runID, key string, value float64) error {
	if key == "" {
		return fmt.Errorf("tracking: log metric: key is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("tracking: log metric %s: value %v is not finite", key, value)
	}
	m := models.Metric{RunID: runID, Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&m).Error
	if err != nil {
		return unavailable("log metric "+key, err)
	}
	return nil
}

// LogMetrics logs each entry of metrics in key order.
func (s *Store) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := s.LogMetric(ctx, runID, k, metrics[k]); err != nil {
			return err
		}
	}
	return nil
}

// LogArtifact appends an artifact row.
func (s *Store) LogArtifact(ctx context.Context, runID, kind, path string) error {
	if kind == "" || path == "" {
		return fmt.Errorf("tracking: log artifact: kind and path are required")
	}
	a := models.Artifact{RunID: runID, Kind: kind, Path: path}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return unavailable("log artifact "+kind, err)
	}
	return nil
}

// GetRun returns the run, or ok=false when it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, bool, error) {
	var row models.Run
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get run "+runID, err)
	}
	return toRun(row), true, nil
}

// GetRunDetail returns the run with its metrics and artifacts.
func (s *Store) GetRunDetail(ctx context.Context, runID string) (*RunDetail, bool, error) {
	run, ok, err := s.GetRun(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}

	metrics, err := s.metricsFor(ctx, []string{runID})
	if err != nil {
		return nil, false, err
	}

	var rows []models.Artifact
	err = s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("kind ASC, path ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, false, unavailable("list artifacts "+runID, err)
	}
	artifacts := make([]ArtifactRecord, 0, len(rows))
	for _, a := range rows {
		artifacts = append(artifacts, ArtifactRecord{ID: a.ID, Kind: a.Kind, Path: a.Path})
	}

	m := metrics[runID]
	if m == nil {
		m = map[string]float64{}
	}
	return &RunDetail{Run: *run, Metrics: m, Artifacts: artifacts}, true, nil
}

// ListRuns returns runs newest first, ties broken by run_id descending.
func (s *Store) ListRuns(ctx context.Context, opts ListOpts) ([]RunSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := max(opts.Offset, 0)

	var rows []models.Run
	err := s.db.WithContext(ctx).
		Order("created_at DESC, run_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("list runs", err)
	}

	out := make([]RunSummary, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		r := toRun(row)
		out = append(out, RunSummary{
			RunID:     r.RunID,
			CreatedAt: r.CreatedAt,
			Kind:      r.Kind(),
			GitCommit: r.GitCommit,
			GitBranch: r.GitBranch,
			GitDirty:  r.GitDirty,
			Note:      r.Note,
		})
		ids = append(ids, r.RunID)
	}

	if !opts.IncludeMetrics || len(ids) == 0 {
		return out, nil
	}
	metrics, err := s.metricsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		m := metrics[out[i].RunID]
		if m == nil {
			m = map[string]float64{}
		}
		out[i].Metrics = m
	}
	return out, nil
}

func (s *Store) metricsFor(ctx context.Context, runIDs []string) (map[string]map[string]float64, error) {
	var rows []models.Metric
	if err := s.db.WithContext(ctx).Where("run_id IN ?", runIDs).Find(&rows).Error; err != nil {
		return nil, unavailable("list metrics", err)
	}
	out := make(map[string]map[string]float64, len(runIDs))
	for _, m := range rows {
		if out[m.RunID] == nil {
			out[m.RunID] = map[string]float64{}
		}
		out[m.RunID][m.Key] = m.Value
	}
	return out, nil
}

// LatestRunID prefers the pointer index and falls back to the newest run
// in the store.
func (s *Store) LatestRunID(ctx context.Context) (string, bool, error) {
	if s.latest != nil {
		if id, ok := s.latest.LatestRunID(); ok && id != "" {
			return id, true, nil
		}
	}

	var row models.Run
	err := s.db.WithContext(ctx).
		Select("run_id").
		Order("created_at DESC, run_id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("latest run", err)
	}
	return row.RunID, true, nil
}

// UpsertRegistryEntry inserts or replaces every field of the (name, stage)
// slot. It is the only mutation path for registry entries.
func (s *Store) UpsertRegistryEntry(ctx context.Context, name, stage, runID, path string, metrics map[string]float64) error {
	if name == "" {
		return fmt.Errorf("tracking: upsert registry entry: name is required")
	}
	if !slices.Contains(ValidStages, stage) {
		return fmt.Errorf("tracking: upsert registry entry: unknown stage %q", stage)
	}
	snapshot := datatypes.JSONMap{}
	for k, v := range metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("tracking: upsert registry entry: metric %s is not finite", k)
		}
		snapshot[k] = v
	}

	row := models.RegistryEntry{
		Name:      name,
		Stage:     stage,
		RunID:     runID,
		Path:      path,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		Metrics:   snapshot,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "stage"}},
		DoUpdates: clause.AssignmentColumns([]string{"run_id", "path", "created_at", "metrics_json"}),
	}).Create(&row).Error
	if err != nil {
		return unavailable("upsert registry entry "+name, err)
	}
	return nil
}

// GetRegistryEntry returns the (name, stage) slot, or ok=false when empty.
func (s *Store) GetRegistryEntry(ctx context.Context, name, stage string) (*RegistryEntry, bool, error) {
	var row models.RegistryEntry
	err := s.db.WithContext(ctx).Where("name = ? AND stage = ?", name, stage).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get registry entry "+name, err)
	}
	return &RegistryEntry{
		Name:      row.Name,
		Stage:     row.Stage,
		RunID:     row.RunID,
		Path:      row.Path,
		CreatedAt: row.CreatedAt.UTC(),
		Metrics:   floatMap(row.Metrics),
	}, true, nil
}

func toRun(row models.Run) *Run {
	params := map[string]any(row.Params)
	if params == nil {
		params = map[string]any{}
	}
	return &Run{
		RunID:     row.RunID,
		CreatedAt: row.CreatedAt.UTC(),
		GitCommit: row.GitCommit,
		GitBranch: row.GitBranch,
		GitDirty:  row.GitDirty,
		Params:    params,
		Note:      row.Note,
	}
}

// floatMap converts a decoded JSON object to numeric metrics, dropping
// non-numeric values.
func floatMap(m datatypes.JSONMap) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Package registry exposes the "current model" per name and performs
// promotion: copy the candidate to the canonical path, then record it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/fsutil"
	"github.com/zulandar/modelyard/internal/notify"
	"github.com/zulandar/modelyard/internal/tracking"
)

// ErrModelSourceNotFound is returned by Promote when the candidate file
// does not exist.
var ErrModelSourceNotFound = errors.New("model source not found")

// EntryStore is the subset of the run store the registry needs.
type EntryStore interface {
	UpsertRegistryEntry(ctx context.Context, name, stage, runID, path string, metrics map[string]float64) error
	GetRegistryEntry(ctx context.Context, name, stage string) (*tracking.RegistryEntry, bool, error)
	Identity() string
}

// Loader deserializes a model file.
type Loader func(path string) (classifier.Classifier, error)

// Info describes the current model for a name.
type Info struct {
	Name      string             `json:"name"`
	Stage     string             `json:"stage"`
	RunID     string             `json:"run_id"`
	Path      string             `json:"path"`
	CreatedAt time.Time          `json:"created_at"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Resolved is a registry entry together with the model file it resolved to.
type Resolved struct {
	Info    Info
	Path    string
	ModTime time.Time
}

// Registry manages current-model slots.
type Registry struct {
	store    EntryStore
	cfg      *config.Config
	load     Loader
	notifier notify.Notifier
	log      zerolog.Logger

	promoteMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLoader overrides classifier.Load.
func WithLoader(l Loader) Option { return func(r *Registry) { r.load = l } }

// WithNotifier sets the notifier invoked after each successful promotion.
func WithNotifier(n notify.Notifier) Option { return func(r *Registry) { r.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Registry) { r.log = l } }

// New returns a Registry backed by store. cfg supplies the artifacts root,
// the canonical current-model path and the default model name.
func New(store EntryStore, cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		cfg:      cfg,
		load:     classifier.Load,
		notifier: notify.Nop{},
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DefaultName is the configured model name.
func (r *Registry) DefaultName() string { return r.cfg.ModelName }

// Identity returns the backing store's identity.
func (r *Registry) Identity() string { return r.store.Identity() }

func (r *Registry) name(name string) string {
	if name == "" {
		return r.cfg.ModelName
	}
	return name
}

// CurrentInfo returns the current entry for name, or ok=false when nothing
// has been promoted.
func (r *Registry) CurrentInfo(ctx context.Context, name string) (*Info, bool, error) {
	name = r.name(name)
	e, ok, err := r.store.GetRegistryEntry(ctx, name, tracking.StageCurrent)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Info{
		Name:      e.Name,
		Stage:     e.Stage,
		RunID:     e.RunID,
		Path:      e.Path,
		CreatedAt: e.CreatedAt,
		Metrics:   e.Metrics,
	}, true, nil
}

// Promote copies src to the canonical path for name and records runID as
// current. The copy lands via temp file and rename. If recording fails the
// previous file is restored. Notification failures are logged only.
func (r *Registry) Promote(ctx context.Context, runID, src string, metrics map[string]float64, name string) (string, error) {
	name = r.name(name)
	if !config.ValidModelName(name) {
		return "", fmt.Errorf("registry: promote: invalid model name %q", name)
	}
	if runID == "" {
		return "", fmt.Errorf("registry: promote: run_id is required")
	}
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("registry: promote %s: %w: %s", runID, ErrModelSourceNotFound, src)
		}
		return "", fmt.Errorf("registry: promote %s: stat source: %w", runID, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("registry: promote %s: %w: %s is not a regular file", runID, ErrModelSourceNotFound, src)
	}

	r.promoteMu.Lock()
	defer r.promoteMu.Unlock()

	dst := r.cfg.CurrentModelPathFor(name)
	dir := filepath.Dir(dst)

	staged, err := fsutil.CopyToTemp(src, dir, ".promote-*")
	if err != nil {
		return "", fmt.Errorf("registry: promote %s: stage copy: %w", runID, err)
	}
	defer os.Remove(staged) // no-op once renamed

	var backup string
	if _, ok := fsutil.IsRegular(dst); ok {
		backup, err = fsutil.CopyToTemp(dst, dir, ".previous-*")
		if err != nil {
			return "", fmt.Errorf("registry: promote %s: back up current: %w", runID, err)
		}
		defer os.Remove(backup)
	}

	if err := os.Rename(staged, dst); err != nil {
		return "", fmt.Errorf("registry: promote %s: replace current: %w", runID, err)
	}

	if err := r.store.UpsertRegistryEntry(ctx, name, tracking.StageCurrent, runID, dst, metrics); err != nil {
		r.rollback(dst, backup)
		return "", fmt.Errorf("registry: promote %s: %w", runID, err)
	}

	r.log.Info().Str("name", name).Str("run_id", runID).Str("path", dst).Msg("model promoted")

	evt := notify.PromotionEvent(notify.Promotion{Name: name, RunID: runID, Path: dst, Metrics: metrics})
	if err := r.notifier.Notify(ctx, evt); err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("promotion notification failed")
	}
	return dst, nil
}

// rollback puts the previous current file back after a failed upsert, or
// removes the new file when there was none.
func (r *Registry) rollback(dst, backup string) {
	var err error
	if backup != "" {
		err = os.Rename(backup, dst)
	} else {
		err = os.Remove(dst)
	}
	if err != nil {
		r.log.Error().Err(err).Str("path", dst).Msg("restore current model after failed promotion")
	}
}

// Resolve finds the model file for the current entry of name. Candidates
// are tried in order: the recorded path, the recorded path under the
// artifacts root, then the canonical path. ok=false means no entry or no
// existing candidate.
func (r *Registry) Resolve(ctx context.Context, name string) (*Resolved, bool, error) {
	name = r.name(name)
	info, ok, err := r.CurrentInfo(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	for _, p := range r.candidates(info.Path, name) {
		if fi, ok := fsutil.IsRegular(p); ok {
			return &Resolved{Info: *info, Path: p, ModTime: fi.ModTime()}, true, nil
		}
	}
	return nil, false, nil
}

func (r *Registry) candidates(recorded, name string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" {
			return
		}
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(recorded)
	if recorded != "" && !filepath.IsAbs(recorded) {
		add(filepath.Join(r.cfg.ArtifactsDir, recorded))
	}
	add(r.cfg.CurrentModelPathFor(name))
	return out
}

// Load deserializes the model at path with the configured loader.
func (r *Registry) Load(path string) (classifier.Classifier, error) {
	return r.load(path)
}

// LoadCurrent resolves and deserializes the current model. It returns
// ok=false when nothing is promoted or no candidate file exists, and an
// error (usually *classifier.DecodeError) when a file exists but is not a
// valid model.
func (r *Registry) LoadCurrent(ctx context.Context, name string) (classifier.Classifier, bool, error) {
	res, ok, err := r.Resolve(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	c, err := r.load(res.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("registry: load current: %w", err)
	}
	return c, true, nil
}

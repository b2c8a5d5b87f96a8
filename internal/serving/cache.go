package serving

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/registry"
)

// ErrModelLoadFailed wraps any failure to deserialize the resolved current
// model file.
var ErrModelLoadFailed = errors.New("model load failed")

// Source resolves and loads the current model. *registry.Registry
// implements it.
type Source interface {
	Resolve(ctx context.Context, name string) (*registry.Resolved, bool, error)
	Load(path string) (classifier.Classifier, error)
	Identity() string
}

// CacheKey is the staleness key of a cached model. Any field differing from
// the freshly resolved key forces a reload.
type CacheKey struct {
	DBIdentity string
	Path       string
	RunID      string
	ModTimeNS  int64
}

// Entry is a loaded model and the registry entry it came from.
type Entry struct {
	Key   CacheKey
	Info  registry.Info
	Model classifier.Classifier
}

// ModelCache holds the deserialized current model for one name and
// reloads it when the registry entry or the file changes. The lock covers
// only the compare and the swap; loading happens outside it, so concurrent
// callers that both see a stale entry may both load, and the last to
// finish wins. The entry is keyed by the mtime seen at resolve time, so a
// file replaced between resolve and load is cached under the older key and
// reloaded once more on the next Get.
type ModelCache struct {
	src  Source
	name string

	mu    sync.Mutex
	entry *Entry

	loads atomic.Int64
}

// NewModelCache returns an empty cache for the model name ("" means the
// registry's default).
func NewModelCache(src Source, name string) *ModelCache {
	return &ModelCache{src: src, name: name}
}

// Get returns the current model, reloading it if stale. ok=false means no
// model is promoted or its file is gone; the cache is emptied in that case
// and on every error.
func (c *ModelCache) Get(ctx context.Context) (*Entry, bool, error) {
	res, ok, err := c.src.Resolve(ctx, c.name)
	if err != nil {
		c.Invalidate()
		return nil, false, fmt.Errorf("serving: resolve current model: %w", err)
	}
	if !ok {
		c.Invalidate()
		return nil, false, nil
	}

	key := CacheKey{
		DBIdentity: c.src.Identity(),
		Path:       res.Path,
		RunID:      res.Info.RunID,
		ModTimeNS:  res.ModTime.UnixNano(),
	}

	c.mu.Lock()
	if e := c.entry; e != nil && e.Key == key {
		c.mu.Unlock()
		return e, true, nil
	}
	c.mu.Unlock()

	model, err := c.src.Load(res.Path)
	c.loads.Add(1)
	if err != nil {
		c.Invalidate()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("serving: %w: %w", ErrModelLoadFailed, err)
	}

	e := &Entry{Key: key, Info: res.Info, Model: model}
	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()
	return e, true, nil
}

// Invalidate empties the cache; the next Get reloads from scratch.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Cached returns the cached entry without resolving anything.
func (c *ModelCache) Cached() (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry, c.entry != nil
}

// Loads reports how many deserializations the cache has attempted.
func (c *ModelCache) Loads() int64 { return c.loads.Load() }

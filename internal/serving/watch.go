package serving

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch invalidates cache whenever one of files is written, created,
// renamed or removed. It watches the parent directories, since promotion
// replaces the file by rename. The goroutine exits when ctx is done.
//
// Watching only makes reloads prompt; Get's stat check stays authoritative.
func Watch(ctx context.Context, cache *ModelCache, log zerolog.Logger, files ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("serving: watch: %w", err)
	}

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return fmt.Errorf("serving: watch %s: %w", f, err)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return fmt.Errorf("serving: watch %s: %w", d, err)
		}
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(evt.Name)
				if err != nil || !targets[name] {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				log.Debug().Str("file", name).Str("op", evt.Op.String()).Msg("model file changed; cache invalidated")
				cache.Invalidate()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("model file watcher")
			}
		}
	}()
	return nil
}

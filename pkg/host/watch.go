package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/bmi/pkg/telemetry"
)

// Registry changes reported by Watch.
const (
	ChangeRegistered = "registered"
	ChangeRemoved    = "removed"
	ChangeFailed     = "failed"
)

// RegistryChange describes one model added or removed by Watch.
type RegistryChange struct {
	Key      string
	Change   string
	Manifest string
	Err      error
}

// watchDebounce coalesces the burst of events an editor produces per save.
const watchDebounce = 200 * time.Millisecond

// Watch keeps the registry in sync with the manifests under dir until ctx
// is done. A manifest that is written is (re)registered; one that is
// removed unregisters its model. notify may be nil.
func (r *Registry) Watch(ctx context.Context, dir string, notify func(RegistryChange)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(dir, entry.Name())); err != nil {
				r.logger.Warn().Err(err).Str("path", entry.Name()).Msg("Failed to watch model directory")
			}
		}
	}

	if notify == nil {
		notify = func(RegistryChange) {}
	}
	go r.processEvents(ctx, watcher, notify)

	r.logger.Info().Str("dir", dir).Msg("Started watching model manifests")
	return nil
}

func (r *Registry) processEvents(ctx context.Context, watcher *fsnotify.Watcher, notify func(RegistryChange)) {
	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						r.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch model directory")
					}
					manifestPath := filepath.Join(event.Name, ManifestFile)
					if _, err := os.Stat(manifestPath); err == nil {
						r.scheduleReload(ctx, &mu, timers, manifestPath, notify)
					}
					continue
				}
			}

			if filepath.Base(event.Name) != ManifestFile {
				continue
			}

			r.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest changed")

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				r.scheduleReload(ctx, &mu, timers, event.Name, notify)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				for _, key := range r.unregisterPath(event.Name) {
					r.logger.Info().Str("model", key).Msg("Model removed")
					telemetry.RecordRegistryChange(ctx, key, ChangeRemoved, event.Name)
					notify(RegistryChange{Key: key, Change: ChangeRemoved, Manifest: event.Name})
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("Manifest watcher error")
		}
	}
}

func (r *Registry) scheduleReload(ctx context.Context, mu *sync.Mutex, timers map[string]*time.Timer, path string, notify func(RegistryChange)) {
	mu.Lock()
	defer mu.Unlock()

	if t, ok := timers[path]; ok {
		t.Stop()
	}
	timers[path] = time.AfterFunc(watchDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		key, err := r.replaceFromPath(path)
		if err != nil {
			r.logger.Error().Err(err).Str("manifest", path).Msg("Failed to reload model manifest")
			notify(RegistryChange{Change: ChangeFailed, Manifest: path, Err: err})
			return
		}
		r.logger.Info().Str("model", key).Msg("Model registered")
		telemetry.RecordRegistryChange(ctx, key, ChangeRegistered, path)
		notify(RegistryChange{Key: key, Change: ChangeRegistered, Manifest: path})
	})
}

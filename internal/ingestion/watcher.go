package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the seed file must stay unchanged before a
// rebuild starts.
const DefaultDebounce = 2 * time.Second

// RebuildFunc rebuilds the network after the seed file changed.
type RebuildFunc func(ctx context.Context) error

// WatchOptions configures WatchSeeds.
type WatchOptions struct {
	Debounce time.Duration
	Logger   *zap.Logger
}

// WatchSeeds monitors the seed file and calls rebuild after it changed.
// Bursts of changes are batched into one rebuild. Rebuild errors are
// logged and watching goes on. Blocks until the context is cancelled.
func WatchSeeds(ctx context.Context, seedPath string, rebuild RebuildFunc, opts WatchOptions) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	target, err := filepath.Abs(seedPath)
	if err != nil {
		return fmt.Errorf("resolving seed path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files by renaming, so the directory is watched
	// rather than the file itself.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()
	pending := false

	log.Info("watching seed file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSeedChange(event, target) {
				continue
			}
			log.Debug("seed file changed", zap.String("op", event.Op.String()))
			pending = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))

		case <-batchTimer.C:
			if !pending {
				continue
			}
			pending = false
			log.Info("rebuilding network")
			if err := rebuild(ctx); err != nil && ctx.Err() == nil {
				log.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

func isSeedChange(event fsnotify.Event, target string) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

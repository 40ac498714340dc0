package run

import (
	"context"
	"path/filepath"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce is how long header changes settle before mocks are regenerated.
const watchDebounce = 200 * time.Millisecond

// watch calls regenerate with the headers that changed, once changes have settled for debounce,
// until ctx is cancelled. Directories are watched rather than files so editors that replace a file
// on save are followed.
func watch(
	ctx context.Context,
	headers []string,
	debounce time.Duration,
	logger *zap.Logger,
	regenerate func(context.Context, []string) error,
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer watcher.Close()

	tracked := make(map[string]string, len(headers))
	dirs := make(map[string]bool)

	for _, header := range headers {
		abs, err := filepath.Abs(header)
		if err != nil {
			return errors.Wrapf(err, "resolving %s", header)
		}

		tracked[abs] = header
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		err = watcher.Add(dir)
		if err != nil {
			return errors.Wrapf(err, "watching %s", dir)
		}
	}

	logger.Info("watching headers", zap.Int(fieldHeaders, len(headers)))

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			header, ok := tracked[abs]
			if !ok {
				continue
			}

			pending[header] = true

			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for header := range pending {
				changed = append(changed, header)
			}

			slices.Sort(changed)
			clear(pending)

			logger.Info("headers changed", zap.Strings(fieldChanged, changed))

			err := regenerate(ctx, changed)
			if err != nil {
				logger.Error("regeneration failed", zap.Error(err))
			}
		}
	}
}

package config

import (
	"context"
	"fmt"

	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path on every write or re-create and hands the
// result to onChange. It stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Configuration)) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	log := logger.Global().WithPrefix("config")
	log.Debug("watching %s", path)

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(path)
				if err != nil {
					log.Error("reload %s: %v", path, err)
					continue
				}
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("watch error: %v", err)
			}
		}
	}()

	return nil
}

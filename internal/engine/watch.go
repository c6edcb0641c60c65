package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiredact/internal/config"
)

// WatchConfig reloads the redaction config at path into e whenever the file
// changes, until ctx is done. The parent directory is watched so that
// editors that replace the file on save are picked up. A file that fails to
// load or validate is logged and the current pipeline stays in place.
func WatchConfig(ctx context.Context, e *Engine, path string) error {
	if path == "" {
		return fmt.Errorf("watching redaction config: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watching redaction config: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				reload(ctx, e, abs)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config_watch_error")
			}
		}
	}()

	log.Info().Str("file", filepath.Base(abs)).Msg("config_watch_started")
	return nil
}

func reload(ctx context.Context, e *Engine, path string) {
	cfg, err := config.LoadRedactionConfig(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("config_reload_rejected")
		return
	}
	if err := e.Reconfigure(cfg); err != nil {
		log.Error().Err(err).Msg("config_reload_failed")
		return
	}
	log.Info().Str("file", filepath.Base(path)).Int("sectors", len(cfg.Sectors)).Msg("config_reloaded")
}

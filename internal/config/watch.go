package config

import (
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads path on every write and hands each configuration that passes
// Validate to onChange. Invalid edits are logged and skipped.
func Watch(path string, logger zerolog.Logger, onChange func(*Config)) error {
	if path == "" {
		return errors.New("config watch requires an explicit --config path")
	}
	logger = logger.With().Str("component", "config").Logger()

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", ev.Name).Msg("ignoring invalid config change")
			return
		}
		logger.Info().Str("file", ev.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

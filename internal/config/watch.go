package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/errors"
)

// ChangeFunc receives a freshly validated configuration after the watched
// file changed on disk.
type ChangeFunc func(cfg *Config)

// Watch re-reads path whenever it is written and hands each valid result to
// onChange. Invalid edits are logged and skipped, so a half-saved file never
// reaches the engine. Notifications stop once ctx is done.
//
// Only live-tunable settings (thresholds, rate limits) should be applied by
// onChange; storage settings take effect on restart.
func Watch(ctx context.Context, path string, onChange ChangeFunc) error {
	if path == "" || !fileExists(path) {
		return errors.Wrapf(errors.ErrInvalidArgument, "config file %q does not exist", path)
	}

	v := newViperInstance()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config: %s", path)
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Str("path", path).Logger()

	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := unmarshalAndValidate(v)
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring invalid config change")
			return
		}

		logger.Info().
			Float64("governor.warning_threshold", cfg.Governor.WarningThreshold).
			Float64("governor.critical_threshold", cfg.Governor.CriticalThreshold).
			Int("governor.default_rate_limit", cfg.Governor.DefaultRateLimit).
			Msg("configuration reloaded")
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

package checkpoint

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/constants"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/logging"
)

// OpenStore builds the backend selected by cfg. The returned closer releases
// backend resources and is never nil.
func OpenStore(ctx context.Context, cfg *config.StorageConfig, logger zerolog.Logger) (Store, io.Closer, error) {
	switch cfg.CheckpointBackend {
	case "", constants.CheckpointBackendFile:
		s, err := NewFileStore(cfg.CheckpointDir, WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("dir", s.Dir()).Msg("file checkpoint store ready")
		return s, nopCloser{}, nil

	case constants.CheckpointBackendRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		s := NewRedisStore(client)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		logger.Debug().
			Str("redis_url", logging.SafeValue("redis_url", cfg.RedisURL)).
			Msg("redis checkpoint store ready")
		return s, s, nil
	}

	return nil, nil, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "unknown checkpoint backend %q", cfg.CheckpointBackend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package history keeps every composed reading in a local sqlite database,
// whether or not it was published.
package history

import (
	"context"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"codeberg.org/mutker/envirod/internal/telemetry"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

// NewService returns a sqlite backed collector, or a no-op one when history
// is disabled.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("History service initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, rec *telemetry.Record) error {
	errFactory := errors.New()

	if rec == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(rec); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Latest(ctx context.Context, limit int) ([]telemetry.Record, error) {
	return s.repo.Latest(ctx, limit)
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopCollector) Record(context.Context, *telemetry.Record) error {
	return nil
}

func (*noopCollector) Latest(context.Context, int) ([]telemetry.Record, error) {
	return nil, nil
}

func (*noopCollector) Close() error {
	return nil
}

package history

import (
	"context"

	"codeberg.org/mutker/envirod/internal/telemetry"
)

// Collector stores composed readings. It satisfies telemetry.Recorder.
type Collector interface {
	Record(ctx context.Context, rec *telemetry.Record) error
	Latest(ctx context.Context, limit int) ([]telemetry.Record, error)
	Close() error
}

// Repository is the storage behind a Collector.
type Repository interface {
	Record(rec *telemetry.Record) error
	Latest(ctx context.Context, limit int) ([]telemetry.Record, error)
	Close() error
}

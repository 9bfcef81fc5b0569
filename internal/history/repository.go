package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"codeberg.org/mutker/envirod/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*telemetry.Record
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens the database, bringing its schema up to date. Records
// are buffered and written once BatchSize accumulate or BatchTimeout passes.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*telemetry.Record, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(rec *telemetry.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Latest flushes pending records and returns up to limit readings, newest
// first.
func (r *repository) Latest(ctx context.Context, limit int) ([]telemetry.Record, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, latestReadingsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var (
			ts                                  int64
			temp, comp, humidity, pressure, lux float64
		)
		if err := rows.Scan(&ts, &temp, &comp, &humidity, &pressure, &lux); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		out = append(out, telemetry.Record{
			Timestamp:       time.UnixMicro(ts),
			Temperature:     telemetry.Fixed2(temp),
			CompTemperature: telemetry.Fixed2(comp),
			Humidity:        telemetry.Fixed2(humidity),
			Pressure:        telemetry.Fixed2(pressure),
			Lux:             telemetry.Fixed2(lux),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		closeErr = r.close()
	})
	return closeErr
}

func (r *repository) close() error {
	// The flusher performs the final flush on its way out.
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()
	if flushErr != nil {
		r.logger.ErrorWithCode(flushErr).Int("records", len(r.buffer)).Msg("Dropping unflushed readings")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.ErrorWithCode(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. The caller holds r.mu. On
// failure the buffer is kept for the next attempt.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range r.buffer {
		values := []any{
			rec.Timestamp.UnixMicro(),
			float64(rec.Temperature),
			float64(rec.CompTemperature),
			float64(rec.Humidity),
			float64(rec.Pressure),
			float64(rec.Lux),
		}

		if _, err := stmt.Exec(values...); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed readings to database")
	r.buffer = r.buffer[:0]

	return nil
}

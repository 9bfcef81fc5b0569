// Package agent schedules the sampling cycle.
package agent

import (
	"context"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"codeberg.org/mutker/envirod/internal/telemetry"
)

// Transport is the cloud link the driver keeps open. Connect must be a no-op
// when already connected.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
}

// Cycle produces and delivers one telemetry record.
type Cycle interface {
	Run(ctx context.Context) (*telemetry.Record, error)
}

// IntervalSource reports how long to wait between cycles.
type IntervalSource interface {
	IntervalDuration() time.Duration
}

// WaitFunc blocks for d or until ctx is done, whichever comes first.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Driver struct {
	transport Transport
	cycle     Cycle
	interval  IntervalSource
	log       logger.Logger
	wait      WaitFunc
}

func NewDriver(transport Transport, cycle Cycle, interval IntervalSource, log logger.Logger) *Driver {
	return &Driver{
		transport: transport,
		cycle:     cycle,
		interval:  interval,
		log:       log,
		wait:      Sleep,
	}
}

// WithWait replaces the inter-cycle wait.
func (d *Driver) WithWait(wait WaitFunc) *Driver {
	d.wait = wait
	return d
}

// Run repeats connect, cycle and wait until ctx is cancelled, then closes the
// transport. Failures inside an iteration are logged and the loop carries on
// at the next wake-up. The interval is read again before every wait. The only
// error returned is a failure to close the transport.
func (d *Driver) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		_ = d.RunOnce(ctx)

		interval := d.interval.IntervalDuration()
		d.log.Debug().Dur("interval", interval).Msg("Waiting for next cycle")

		if err := d.wait(ctx, interval); err != nil {
			break
		}
	}

	return d.Close()
}

// RunOnce connects and runs a single cycle. A failed connect aborts the
// cycle.
func (d *Driver) RunOnce(ctx context.Context) error {
	if err := d.transport.Connect(ctx); err != nil {
		d.log.ErrorWithCode(err).Msg("Failed to connect, skipping cycle")
		return err
	}

	if _, err := d.cycle.Run(ctx); err != nil {
		d.log.ErrorWithCode(err).Msg("Sampling cycle failed")
		return err
	}

	return nil
}

// Close releases the transport.
func (d *Driver) Close() error {
	if err := d.transport.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	d.log.Debug().Msg("Transport closed")
	return nil
}

// Sleep waits for d, returning early with the context's error on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package telemetry runs one sampling cycle: read the sensors, compensate
// the temperature, then persist and publish the resulting record.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"codeberg.org/mutker/envirod/internal/cloud"
	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
)

const (
	ContentType     = "application/json"
	ContentEncoding = "utf-8"
)

type Cycle struct {
	sensors  Sensors
	comp     Compensator
	state    StateWriter
	pub      Publisher
	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewCycle(sensors Sensors, comp Compensator, state StateWriter, pub Publisher, log logger.Logger) *Cycle {
	return &Cycle{
		sensors: sensors,
		comp:    comp,
		state:   state,
		pub:     pub,
		log:     log,
		now:     time.Now,
	}
}

// WithRecorder attaches a history recorder to the cycle.
func (c *Cycle) WithRecorder(r Recorder) *Cycle {
	c.recorder = r
	return c
}

// WithClock replaces the timestamp source.
func (c *Cycle) WithClock(now func() time.Time) *Cycle {
	c.now = now
	return c
}

// Run performs one cycle. A sensor failure aborts it before anything is
// delivered. Persistence is best effort; a publish failure is returned
// together with the record that could not be sent.
func (c *Cycle) Run(ctx context.Context) (*Record, error) {
	errFactory := errors.New()

	rec, err := c.sample()
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, errFactory.Wrap(ErrEncode, err)
	}

	if err := c.state.WriteState(ctx, doc); err != nil {
		c.log.ErrorWithCode(errFactory.Wrap(ErrPersist, err)).Msg("Failed to write state file")
	}

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, rec); err != nil {
			c.log.Warn().Err(err).Msg("Failed to record history")
		}
	}

	if err := c.pub.SendTelemetry(ctx, cloud.Message{
		Body:            doc,
		ContentType:     ContentType,
		ContentEncoding: ContentEncoding,
	}); err != nil {
		return rec, errFactory.Wrap(ErrPublish, err)
	}

	c.log.Info().RawJSON("record", doc).Msg("Telemetry published")

	return rec, nil
}

func (c *Cycle) sample() (*Record, error) {
	if err := c.sensors.UpdateSensor(); err != nil {
		return nil, sensorError("light", err)
	}

	raw, err := c.sensors.Temperature()
	if err != nil {
		return nil, sensorError("temperature", err)
	}

	comp, err := c.comp.Compensate(raw)
	if err != nil {
		if errors.HasCode(err, ErrSensorRead) {
			return nil, err
		}
		return nil, sensorError("cpu_temperature", err)
	}

	humidity, err := c.sensors.Humidity()
	if err != nil {
		return nil, sensorError("humidity", err)
	}

	pressure, err := c.sensors.Pressure()
	if err != nil {
		return nil, sensorError("pressure", err)
	}

	lux, err := c.sensors.Lux()
	if err != nil {
		return nil, sensorError("lux", err)
	}

	c.log.Debug().
		Float64("raw_temperature", raw).
		Float64("comp_temperature", comp).
		Float64("humidity", humidity).
		Float64("pressure", pressure).
		Float64("lux", lux).
		Msg("Sensors sampled")

	return &Record{
		Timestamp:       c.now(),
		Temperature:     Fixed2(raw),
		CompTemperature: Fixed2(comp),
		Humidity:        Fixed2(humidity),
		Pressure:        Fixed2(pressure),
		Lux:             Fixed2(lux),
	}, nil
}

func sensorError(channel string, err error) error {
	return errors.New().WithData(ErrSensorRead, struct {
		Channel string
		Error   string
	}{
		Channel: channel,
		Error:   err.Error(),
	})
}

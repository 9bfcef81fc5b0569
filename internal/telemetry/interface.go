package telemetry

import (
	"context"

	"codeberg.org/mutker/envirod/internal/cloud"
)

// Sensors supplies the raw environmental readings.
type Sensors interface {
	// UpdateSensor latches a fresh light measurement; call it before Lux.
	UpdateSensor() error
	Temperature() (float64, error)
	Humidity() (float64, error)
	Pressure() (float64, error)
	Lux() (float64, error)
}

// Compensator corrects a raw ambient temperature for CPU self-heating.
type Compensator interface {
	Compensate(raw float64) (float64, error)
}

// StateWriter stores the most recent serialized record.
type StateWriter interface {
	WriteState(ctx context.Context, doc []byte) error
}

// Publisher delivers telemetry messages to the cloud.
type Publisher interface {
	SendTelemetry(ctx context.Context, msg cloud.Message) error
}

// Recorder keeps a history of records. Failures are not fatal to a cycle.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
}

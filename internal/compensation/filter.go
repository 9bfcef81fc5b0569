// Package compensation corrects the ambient temperature reading for heat
// radiated by the CPU sitting next to the sensor.
package compensation

import (
	"codeberg.org/mutker/envirod/internal/errors"
)

const (
	// DefaultFactor is the thermal coupling between CPU and ambient sensor.
	// Decrease it to pull the corrected value further down.
	DefaultFactor = 2.25
	DefaultWindow = 5
)

// Thermometer reads the current CPU temperature in degrees Celsius.
type Thermometer interface {
	CPUTemperature() (float64, error)
}

// Filter keeps a moving average of CPU temperatures and derives the corrected
// ambient temperature from it. A Filter belongs to the sampling loop and is
// not safe for concurrent use.
type Filter struct {
	cpu     Thermometer
	factor  float64
	history *History
}

// NewFilter reads the CPU temperature once and seeds the whole window with
// it, so the first cycle already averages over a full window.
func NewFilter(cpu Thermometer, window int, factor float64) (*Filter, error) {
	errFactory := errors.New()

	if window < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidWindow, window)
	}
	if factor <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidFactor, factor)
	}

	seed, err := cpu.CPUTemperature()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrSensorRead, err)
	}

	return &Filter{
		cpu:     cpu,
		factor:  factor,
		history: NewHistory(window, seed),
	}, nil
}

// Compensate reads the CPU temperature, slides it into the window and returns
// the corrected value for raw. If the CPU cannot be read the window is left
// untouched and the error is returned.
func (f *Filter) Compensate(raw float64) (float64, error) {
	cpuTemp, err := f.cpu.CPUTemperature()
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	f.history.Slide(cpuTemp)

	return Correct(raw, f.history.Mean(), f.factor), nil
}

// History returns the CPU temperatures currently in the window, oldest first.
func (f *Filter) History() []float64 {
	return f.history.Values()
}

// Correct applies raw - (avgCPU - raw) / factor.
func Correct(raw, avgCPU, factor float64) float64 {
	return raw - ((avgCPU - raw) / factor)
}

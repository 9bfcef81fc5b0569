// Package sensor reads the Enviro board: a BME280 for temperature, humidity
// and pressure, an LTR559 for light, and the CPU temperature of the host.
package sensor

import (
	"io"
	"sync"

	"codeberg.org/mutker/envirod/internal/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

const (
	DefaultBus        = "/dev/i2c-1"
	DefaultBME280Addr = 0x76
	DefaultLTR559Addr = ltr559DefaultAddr
)

type Config struct {
	Bus        string
	BME280Addr uint16
	LTR559Addr uint16
}

// WeatherSensor is satisfied by *bmxx80.Dev.
type WeatherSensor interface {
	Sense(e *physic.Env) error
	Halt() error
}

// LightSensor latches a reading on Update and reports it from Lux.
type LightSensor interface {
	Update() error
	Lux() float64
}

// Enviro exposes the board in the units the telemetry record uses.
type Enviro struct {
	mu      sync.Mutex
	weather WeatherSensor
	light   LightSensor
	bus     io.Closer
}

// Open initialises the host drivers, opens the bus and attaches both sensors.
func Open(cfg Config) (*Enviro, error) {
	errFactory := errors.New()

	if cfg.Bus == "" {
		cfg.Bus = DefaultBus
	}
	if cfg.BME280Addr == 0 {
		cfg.BME280Addr = DefaultBME280Addr
	}

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData(cfg.Bus)
	}

	bme, err := bmxx80.NewI2C(bus, cfg.BME280Addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("Failed to attach BME280")
	}

	light, err := NewLTR559(bus, cfg.LTR559Addr)
	if err != nil {
		_ = bme.Halt()
		_ = bus.Close()
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("Failed to attach LTR559")
	}

	return newEnviro(bme, light, bus), nil
}

func newEnviro(weather WeatherSensor, light LightSensor, bus io.Closer) *Enviro {
	return &Enviro{
		weather: weather,
		light:   light,
		bus:     bus,
	}
}

// UpdateSensor latches the light channels read by Lux.
func (e *Enviro) UpdateSensor() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.light.Update()
}

// Temperature returns degrees Celsius.
func (e *Enviro) Temperature() (float64, error) {
	env, err := e.sense()
	if err != nil {
		return 0, err
	}
	return float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius), nil
}

// Humidity returns relative humidity in percent.
func (e *Enviro) Humidity() (float64, error) {
	env, err := e.sense()
	if err != nil {
		return 0, err
	}
	return float64(env.Humidity) / float64(physic.PercentRH), nil
}

// Pressure returns hectopascals.
func (e *Enviro) Pressure() (float64, error) {
	env, err := e.sense()
	if err != nil {
		return 0, err
	}
	return float64(env.Pressure) / float64(100*physic.Pascal), nil
}

func (e *Enviro) Lux() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.light.Lux(), nil
}

func (e *Enviro) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	haltErr := e.weather.Halt()
	if e.bus != nil {
		if err := e.bus.Close(); err != nil {
			return err
		}
	}
	return haltErr
}

func (e *Enviro) sense() (physic.Env, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var env physic.Env
	if err := e.weather.Sense(&env); err != nil {
		return env, errors.New().Wrap(errors.ErrSensorRead, err)
	}
	return env, nil
}

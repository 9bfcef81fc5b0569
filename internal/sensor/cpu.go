package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/envirod/internal/compensation"
	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/shirou/gopsutil/v3/host"
)

const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// ThermalZone reads a sysfs thermal zone reporting millidegrees Celsius.
type ThermalZone struct {
	Path string
}

func (z ThermalZone) CPUTemperature() (float64, error) {
	path := z.Path
	if path == "" {
		path = DefaultThermalZone
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	s := strings.TrimSpace(string(b))
	milli, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrSensorRead, err).
			WithMessage(fmt.Sprintf("Invalid thermal zone value %q in %s", s, path))
	}

	return float64(milli) / 1000, nil
}

// HostThermometer picks one entry from the host's hardware sensors, as listed
// by gopsutil, by its sensor key (for example "cpu_thermal").
type HostThermometer struct {
	Key string

	read func() ([]host.TemperatureStat, error)
}

func NewHostThermometer(key string) *HostThermometer {
	return &HostThermometer{
		Key:  key,
		read: host.SensorsTemperatures,
	}
}

func (h *HostThermometer) CPUTemperature() (float64, error) {
	stats, err := h.read()
	// Partial results come back together with a warnings error.
	if len(stats) == 0 && err != nil {
		return 0, errors.New().Wrap(errors.ErrSensorRead, err)
	}

	for _, s := range stats {
		if s.SensorKey == h.Key {
			return s.Temperature, nil
		}
	}

	return 0, errors.New().WithMessage(errors.ErrSensorRead, fmt.Sprintf("Host sensor %q not found", h.Key))
}

// NewThermometer prefers the named host sensor when a key is given and falls
// back to the thermal zone file otherwise.
func NewThermometer(path, key string) compensation.Thermometer {
	if key != "" {
		return NewHostThermometer(key)
	}
	return ThermalZone{Path: path}
}

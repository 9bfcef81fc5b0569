package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
)

// TimestampLayout is ISO-8601 local time with microseconds and no zone.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Fixed2 is a measurement rendered with exactly two fractional digits.
type Fixed2 float64

func (f Fixed2) String() string {
	return strconv.FormatFloat(float64(f), 'f', 2, 64)
}

func (f Fixed2) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return nil, errors.New().WithData(ErrInvalidValue, float64(f))
	}
	return []byte(f.String()), nil
}

// Record is one sampling cycle's output.
type Record struct {
	Timestamp       time.Time
	Temperature     Fixed2
	CompTemperature Fixed2
	Humidity        Fixed2
	Pressure        Fixed2
	Lux             Fixed2
}

type wireRecord struct {
	Timestamp       string `json:"timestamp"`
	Temperature     Fixed2 `json:"temperature"`
	CompTemperature Fixed2 `json:"comptemperature"`
	Humidity        Fixed2 `json:"humidity"`
	Pressure        Fixed2 `json:"pressure"`
	Lux             Fixed2 `json:"lux"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Timestamp:       r.Timestamp.Format(TimestampLayout),
		Temperature:     r.Temperature,
		CompTemperature: r.CompTemperature,
		Humidity:        r.Humidity,
		Pressure:        r.Pressure,
		Lux:             r.Lux,
	})
}

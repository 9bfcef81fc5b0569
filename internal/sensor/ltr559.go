package sensor

import (
	"fmt"

	"codeberg.org/mutker/envirod/internal/errors"
	"periph.io/x/conn/v3/i2c"
)

const (
	ltr559DefaultAddr = 0x23

	regALSControl  = 0x80
	regALSMeasRate = 0x85
	regPartID      = 0x86
	regALSData     = 0x88

	ltr559PartNumber = 0x09

	// Gain x4, active mode.
	alsControlValue = 0x09
	// 50 ms integration, 50 ms repeat rate.
	alsMeasRateValue = 0x08

	alsGain          = 4.0
	alsIntegrationMS = 50.0
)

// Lux coefficients from the LTR559 appendix, indexed by channel ratio band.
var (
	ch0Coeff = [4]float64{17743, 42785, 5926, 0}
	ch1Coeff = [4]float64{-11059, 19548, -1185, 0}
)

// LTR559 is the ambient light half of the LTR559 light/proximity sensor.
// Proximity is never enabled.
type LTR559 struct {
	dev *i2c.Dev
	ch0 uint16
	ch1 uint16
}

// NewLTR559 checks the part id and starts continuous ALS measurement.
func NewLTR559(bus i2c.Bus, addr uint16) (*LTR559, error) {
	if addr == 0 {
		addr = ltr559DefaultAddr
	}
	d := &LTR559{dev: &i2c.Dev{Bus: bus, Addr: addr}}

	errFactory := errors.New()

	id := make([]byte, 1)
	if err := d.dev.Tx([]byte{regPartID}, id); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithMessage("Failed to read LTR559 part id")
	}
	if id[0]>>4 != ltr559PartNumber {
		return nil, errFactory.WithMessage(errors.ErrInitFailed, fmt.Sprintf("Unexpected LTR559 part id 0x%02x", id[0]))
	}

	if err := d.write(regALSControl, alsControlValue); err != nil {
		return nil, err
	}
	if err := d.write(regALSMeasRate, alsMeasRateValue); err != nil {
		return nil, err
	}

	return d, nil
}

// Update latches both ALS channels. Channel 1 precedes channel 0 on the wire.
func (d *LTR559) Update() error {
	buf := make([]byte, 4)
	if err := d.dev.Tx([]byte{regALSData}, buf); err != nil {
		return errors.New().Wrap(errors.ErrSensorRead, err).WithMessage("Failed to read LTR559 ALS data")
	}
	d.ch1 = uint16(buf[0]) | uint16(buf[1])<<8
	d.ch0 = uint16(buf[2]) | uint16(buf[3])<<8
	return nil
}

// Lux converts the latched channels to lux.
func (d *LTR559) Lux() float64 {
	return luxFromChannels(d.ch0, d.ch1)
}

func (d *LTR559) write(reg, value byte) error {
	if err := d.dev.Tx([]byte{reg, value}, nil); err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err).WithMessage(fmt.Sprintf("Failed to write LTR559 register 0x%02x", reg))
	}
	return nil
}

func luxFromChannels(ch0, ch1 uint16) float64 {
	c0, c1 := float64(ch0), float64(ch1)

	ratio := 101.0
	if c0+c1 > 0 {
		ratio = c1 * 100 / (c0 + c1)
	}

	var idx int
	switch {
	case ratio < 45:
		idx = 0
	case ratio < 64:
		idx = 1
	case ratio < 85:
		idx = 2
	default:
		idx = 3
	}

	lux := (c0*ch0Coeff[idx] - c1*ch1Coeff[idx]) / 10000
	lux /= alsIntegrationMS / 100
	lux /= alsGain
	return lux
}

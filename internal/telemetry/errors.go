package telemetry

import "codeberg.org/mutker/envirod/internal/errors"

const (
	ErrSensorRead = errors.ErrSensorRead
	ErrPersist    = errors.ErrPersist
	ErrPublish    = errors.ErrPublish
	ErrEncode     = errors.ErrEncode

	ErrInvalidValue = errors.ErrorCode("telemetry_invalid_value")
)

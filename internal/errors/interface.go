// Package errors gives every failure in envirod a stable ErrorCode. Loggers
// emit the code as error_code (see CodeOf), and callers branch on it with
// HasCode instead of comparing messages.
package errors

// ErrorCode identifies a failure class, for example sensor_read_failed.
// Codes are stable; messages are not.
type ErrorCode string

// Error is a coded error. Wrapped causes stay reachable through Unwrap, so
// HasCode finds a code anywhere in the chain while CodeOf reports the
// outermost one.
type Error interface {
	error
	Code() ErrorCode
	// WithMessage and WithData return a copy; the receiver is unchanged.
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory creates coded errors. Packages re-export the codes they return
// (telemetry.ErrPublish, cloud.ErrConnect) so callers need not import this
// package just to compare.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

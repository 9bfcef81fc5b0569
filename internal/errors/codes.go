package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidFactor   ErrorCode = "invalid_compensation_factor"
	ErrInvalidWindow   ErrorCode = "invalid_cpu_window"

	// Credential errors
	ErrMissingCredential ErrorCode = "missing_credential"
	ErrInvalidCredential ErrorCode = "invalid_credential"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Cycle errors
	ErrSensorRead ErrorCode = "sensor_read_failed"
	ErrConnect    ErrorCode = "connect_failed"
	ErrPublish    ErrorCode = "publish_failed"
	ErrPersist    ErrorCode = "persist_failed"
	ErrEncode     ErrorCode = "encode_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrNotConnected    ErrorCode = "not_connected"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrUnavailable:       "Service unavailable",
	ErrInvalidConfig:     "Invalid configuration",
	ErrMissingConfig:     "Missing configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read config file",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidFactor:     "Invalid compensation factor",
	ErrInvalidWindow:     "Invalid CPU temperature window",
	ErrMissingCredential: "Missing device connection string",
	ErrInvalidCredential: "Invalid device connection string",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrSensorRead:        "Failed to read sensor",
	ErrConnect:           "Failed to connect to cloud endpoint",
	ErrPublish:           "Failed to publish telemetry",
	ErrPersist:           "Failed to persist state",
	ErrEncode:            "Failed to encode telemetry",
	ErrOperationFailed:   "Operation failed",
	ErrTimeout:           "Operation timed out",
	ErrNotConnected:      "Not connected",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

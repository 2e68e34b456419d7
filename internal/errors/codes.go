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
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidCurve    ErrorCode = "invalid_curve"
	ErrInvalidWeight   ErrorCode = "invalid_weight"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Sampling errors
	ErrNoCPUData     ErrorCode = "no_cpu_data"
	ErrInvalidSample ErrorCode = "invalid_sample"
	ErrSampleSource  ErrorCode = "sample_source_failed"

	// Sink errors
	ErrSinkTransmission ErrorCode = "sink_transmission_failed"
	ErrSinkTimeout      ErrorCode = "sink_timeout"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrUnavailable:      "Service unavailable",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingConfig:    "Missing configuration",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidCurve:     "Invalid fan curve",
	ErrInvalidWeight:    "Weight outside [0,1]",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrNoCPUData:        "No valid CPU temperature samples",
	ErrInvalidSample:    "Temperature sample outside plausible range",
	ErrSampleSource:     "Failed to read temperature samples",
	ErrSinkTransmission: "Failed to transmit fan speed",
	ErrSinkTimeout:      "Fan speed transmission timed out",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

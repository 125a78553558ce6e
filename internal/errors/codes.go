package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Input errors
	ErrNoFrame      ErrorCode = "no_frame"
	ErrNoDetection  ErrorCode = "no_detection"
	ErrROIOutOfView ErrorCode = "roi_out_of_frame"

	// Signal errors
	ErrInsufficientSkin    ErrorCode = "insufficient_skin"
	ErrBufferFilling       ErrorCode = "buffer_filling"
	ErrInsufficientPeaks   ErrorCode = "insufficient_peaks"
	ErrInsufficientHistory ErrorCode = "insufficient_history"
	ErrLowSignalQuality    ErrorCode = "low_signal_quality"
	ErrFeatureRange        ErrorCode = "feature_out_of_range"
	ErrRateLimited         ErrorCode = "rate_limited"

	// Source errors
	ErrFrameDecode   ErrorCode = "frame_decode_failed"
	ErrReadManifest  ErrorCode = "read_manifest_failed"
	ErrDetectFailed  ErrorCode = "detect_failed"
	ErrSourceFailure ErrorCode = "frame_source_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrUnavailable:         "Service unavailable",
	ErrInvalidConfig:       "Invalid configuration",
	ErrBindFlags:           "Failed to bind flags",
	ErrReadConfig:          "Failed to read config file",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrAlreadyRunning:      "Another camvitals process is running",
	ErrOperationFailed:     "Operation failed",
	ErrTimeout:             "Operation timed out",
	ErrNoFrame:             "No frame available",
	ErrNoDetection:         "No face detected",
	ErrROIOutOfView:        "Region of interest lies outside the frame",
	ErrInsufficientSkin:    "Too few skin pixels in region of interest",
	ErrBufferFilling:       "Signal buffer still filling",
	ErrInsufficientPeaks:   "Too few peaks or valleys in signal window",
	ErrInsufficientHistory: "Too few heart rates for HRV",
	ErrLowSignalQuality:    "Signal quality below threshold",
	ErrFeatureRange:        "Pulse feature outside accepted range",
	ErrRateLimited:         "Update rate limited",
	ErrFrameDecode:         "Failed to decode frame",
	ErrReadManifest:        "Failed to read detection manifest",
	ErrDetectFailed:        "Face detection failed",
	ErrSourceFailure:       "Frame source failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

package telemetry

import "codeberg.org/mutker/camvitals/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Collection Errors
	ErrRegistration  = errors.ErrorCode("telemetry_registration_failed")
	ErrInvalidSample = errors.ErrorCode("telemetry_invalid_sample")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
	ErrServiceShutdown  = errors.ErrShutdownFailed
)

package metrics

import "codeberg.org/mutker/ecoguard/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed
	ErrServiceClosed   = errors.ErrorCode("metrics_service_closed")
)

func init() {
	errors.RegisterMessage(ErrServiceClosed, "Metrics service already closed")
}

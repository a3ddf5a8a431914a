package transport

import "codeberg.org/mutker/ecoguard/internal/errors"

const (
	ErrConnect         = errors.ErrorCode("transport_connect_failed")
	ErrSubscribe       = errors.ErrorCode("transport_subscribe_failed")
	ErrPublish         = errors.ErrorCode("transport_publish_failed")
	ErrSessionLost     = errors.ErrorCode("transport_session_lost")
	ErrSessionClosed   = errors.ErrorCode("transport_session_closed")
	ErrInvalidEndpoint = errors.ErrorCode("transport_invalid_endpoint")
	ErrInvalidTopic    = errors.ErrorCode("transport_invalid_topic")
	ErrTLSConfig       = errors.ErrorCode("transport_tls_config_failed")
	ErrTimeout         = errors.ErrTimeout
)

func init() {
	errors.RegisterMessage(ErrConnect, "Failed to connect to broker")
	errors.RegisterMessage(ErrSubscribe, "Failed to subscribe")
	errors.RegisterMessage(ErrPublish, "Failed to publish")
	errors.RegisterMessage(ErrSessionLost, "Broker connection lost")
	errors.RegisterMessage(ErrSessionClosed, "Session is closed")
	errors.RegisterMessage(ErrInvalidEndpoint, "Invalid broker endpoint")
	errors.RegisterMessage(ErrInvalidTopic, "Invalid topic")
	errors.RegisterMessage(ErrTLSConfig, "Failed to build TLS configuration")
}

package telemetry

import (
	"fmt"

	"codeberg.org/mutker/ecoguard/internal/errors"
)

const (
	ErrMalformedPayload = errors.ErrorCode("telemetry_malformed_payload")
	ErrEncodeFrame      = errors.ErrorCode("telemetry_encode_failed")
)

func init() {
	errors.RegisterMessage(ErrMalformedPayload, "Malformed telemetry payload")
	errors.RegisterMessage(ErrEncodeFrame, "Failed to encode telemetry frame")
}

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	MalformedPayload DecodeErrorKind = iota + 1
)

func (k DecodeErrorKind) String() string {
	if k == MalformedPayload {
		return "MalformedPayload"
	}

	return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
}

// DecodeError reports why a payload was rejected. Field is empty when the
// payload failed before any field could be examined.
type DecodeError struct {
	Kind   DecodeErrorKind
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := errors.GetErrorMessage(ErrMalformedPayload)
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Code() errors.ErrorCode {
	return ErrMalformedPayload
}

// IsMalformed reports whether err is a rejected payload.
func IsMalformed(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == MalformedPayload
}

func malformed(field, reason string, err error) *DecodeError {
	return &DecodeError{
		Kind:   MalformedPayload,
		Field:  field,
		Reason: reason,
		Err:    err,
	}
}

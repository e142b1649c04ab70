package manager

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable classification of a connection
// error, carried alongside the human-readable message on every surfaced
// failure.
type Kind string

const (
	KindNoAdapterFound            Kind = "no_adapter_found"
	KindHandshakeFailed           Kind = "handshake_failed"
	KindProtocolNegotiationFailed Kind = "protocol_negotiation_failed"
	KindTimeout                   Kind = "timeout"
	KindTransportLost             Kind = "transport_lost"
	KindMalformedResponse         Kind = "malformed_response"
	KindInvalidConfig             Kind = "invalid_config"
	KindNotConnected              Kind = "not_connected"
)

// Error is a typed connection failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the error kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

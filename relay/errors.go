package relay

import (
	"errors"
	"fmt"
)

// ErrUpstream matches every *Error via errors.Is.
var ErrUpstream = errors.New("relay upstream failure")

// Kind is the client-facing error code for a failed relay.
type Kind string

const (
	KindFetchFailed     Kind = "FETCH_FAILED"
	KindTimeout         Kind = "UPSTREAM_TIMEOUT"
	KindUpstreamError   Kind = "UPSTREAM_ERROR"
	KindNotOK           Kind = "UPSTREAM_NOT_OK"
	KindInvalidResponse Kind = "UPSTREAM_INVALID_RESPONSE"
)

// Error describes a failed relay call.
type Error struct {
	Kind Kind
	// Status is the upstream HTTP status, zero when no response arrived.
	Status int
	// Upstream is the (possibly parsed) response body, nil when no response arrived.
	Upstream any
	// Err is the transport error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("relay %s: upstream status %d", e.Kind, e.Status)
	default:
		return fmt.Sprintf("relay %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUpstream }

package nmos

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared across the registry, discovery and connection
// packages.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, nmos.ErrInvalidResource) {
//	    // upstream data is missing a relationship field
//	}
var (
	// ErrInvalidArgument indicates bad or missing caller input.
	ErrInvalidArgument = errors.New("nmos: invalid argument")

	// ErrNotFound indicates a referenced resource is absent from the store.
	ErrNotFound = errors.New("nmos: not found")

	// ErrInvalidResource indicates a resource is present but lacks a
	// required relationship field.
	ErrInvalidResource = errors.New("nmos: invalid resource")

	// ErrUpstream indicates a non-success HTTP status from a registry or device.
	ErrUpstream = errors.New("nmos: upstream error")

	// ErrNetwork indicates no response was received.
	ErrNetwork = errors.New("nmos: network error")

	// ErrProtocol indicates a malformed response or push-channel payload.
	ErrProtocol = errors.New("nmos: protocol error")
)

// maxErrorBody limits how much of an upstream body is kept on an error.
const maxErrorBody = 4 << 10

// UpstreamError is returned when a registry or device answers with a
// non-2xx status. It matches ErrUpstream.
type UpstreamError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("nmos: %s %s: upstream status %d", e.Method, e.URL, e.Status)
}

// Is reports whether target is ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NetworkError is returned when a request produced no response.
// It matches ErrNetwork and unwraps to the transport error.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("nmos: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNetwork.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Timeout reports whether the request failed because its deadline passed.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status
	}
	return 0
}

// Kind returns a short label for err's category, used as a metrics label
// and in history rows. Unclassified errors return "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidResource):
		return "invalid_resource"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "internal"
	}
}

func truncateBody(b []byte) []byte {
	if len(b) <= maxErrorBody {
		return b
	}
	return b[:maxErrorBody]
}

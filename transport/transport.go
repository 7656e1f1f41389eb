// Package transport carries single admin protocol calls to completion.
//
// One transport session serves exactly one call: the request is written,
// the write side is closed, and the response is read until the peer closes
// its end. Nothing is multiplexed, so concurrent calls are safe simply
// because each opens its own session.
package transport

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable is wrapped by every transport-level failure: the channel
// could not be opened, or it closed before a complete exchange. It is
// distinct from wire.ErrProtocol so callers can tell "service unreachable"
// from "service responded badly".
var ErrUnavailable = errors.New("admin service unavailable")

// Transport executes admin protocol calls.
//
// In production this is satisfied by *Socket or *Exec.
// In tests, by mock implementations.
type Transport interface {
	// Call performs one complete exchange and returns the raw response
	// bytes, including the status tag. The context bounds the whole
	// exchange; expiry surfaces as a transport failure.
	Call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error)

	// Open starts a long-lived call (the event feed) and returns the
	// response byte stream. Closing the returned reader is the only way
	// to cancel the call.
	Open(ctx context.Context, dest, method, arg string) (io.ReadCloser, error)
}

// Package wire implements the admin protocol wire format.
//
// A request is a single write: three NUL-delimited header fields followed by
// an opaque payload. There is no length prefix; the request boundary is the
// end of the write (the transport is half-duplex, write side closed before
// the response is read).
//
//	┌────────┬──┬──────┬──┬─────┬──┬─────────────────┐
//	│ method │\0│ dest │\0│ arg │\0│ payload bytes...│
//	└────────┴──┴──────┴──┴─────┴──┴─────────────────┘
//
// A response starts with a one-byte status tag. Tag '0' means success and
// the remainder is the return payload, passed up verbatim. Tag '2' means the
// service raised an error and the remainder is three NUL-separated fields:
// exception class name, message, traceback. Anything else is a protocol
// violation.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jbweber/quarry/qerr"
)

// Delim separates the request header fields. It cannot appear inside any
// header field; Encode rejects fields containing it.
const Delim byte = 0x00

// Response status tags.
const (
	TagOK    byte = '0'
	TagError byte = '2'
)

// ErrProtocol is wrapped by every error that indicates malformed or
// truncated wire data. Callers can distinguish "the service responded
// badly" from transport failures and remote errors with errors.Is.
var ErrProtocol = errors.New("admin protocol violation")

// Request identifies one call: target entity, method name, method argument
// and an opaque payload. Dest may be empty to address the service itself;
// Encode substitutes the global destination.
type Request struct {
	Method  string
	Dest    string
	Arg     string
	Payload []byte
}

// GlobalDest addresses the management service itself rather than a
// particular entity.
const GlobalDest = "dom0"

// Encode serializes req into the exact byte layout the service expects.
// Header fields are validated against the protocol's safe character set:
// the delimiter and newlines must not appear in them, and the method name
// must be non-empty.
func Encode(req Request) ([]byte, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("%w: empty method name", ErrProtocol)
	}
	dest := req.Dest
	if dest == "" {
		dest = GlobalDest
	}
	for _, f := range []struct{ name, value string }{
		{"method", req.Method},
		{"dest", dest},
		{"arg", req.Arg},
	} {
		if err := checkField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, len(req.Method)+len(dest)+len(req.Arg)+3+len(req.Payload))
	buf = append(buf, req.Method...)
	buf = append(buf, Delim)
	buf = append(buf, dest...)
	buf = append(buf, Delim)
	buf = append(buf, req.Arg...)
	buf = append(buf, Delim)
	buf = append(buf, req.Payload...)
	return buf, nil
}

// checkField rejects header field values that would corrupt the frame.
// The protocol constrains fields by convention rather than escaping, so a
// stray delimiter or newline must never reach the wire.
func checkField(name, value string) error {
	if strings.ContainsRune(value, rune(Delim)) {
		return fmt.Errorf("%w: %s field contains NUL", ErrProtocol, name)
	}
	if strings.ContainsAny(value, "\n") {
		return fmt.Errorf("%w: %s field contains newline", ErrProtocol, name)
	}
	return nil
}

// ParseResponse decodes a complete raw response. On success it returns the
// return payload verbatim. A well-formed error response is mapped through
// the error taxonomy and returned as a *qerr.RemoteError. Malformed data
// (empty response, unknown tag, missing error fields) yields an error
// wrapping ErrProtocol.
func ParseResponse(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrProtocol)
	}
	switch raw[0] {
	case TagOK:
		return raw[1:], nil
	case TagError:
		fields := bytes.SplitN(raw[1:], []byte{Delim}, 3)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: error response has %d of 3 fields",
				ErrProtocol, len(fields))
		}
		return nil, qerr.FromWire(
			string(fields[0]), string(fields[1]), string(fields[2]))
	default:
		return nil, fmt.Errorf("%w: unrecognized status tag %#x",
			ErrProtocol, raw[0])
	}
}

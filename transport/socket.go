package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jbweber/quarry/wire"
)

// DefaultSocketPath is where the management service listens when the
// client runs on the service's own host.
const DefaultSocketPath = "/var/run/qubesd.sock"

// DefaultTimeout bounds dialing when the caller's context carries no
// deadline of its own.
const DefaultTimeout = 5 * time.Second

// Socket talks to the management service over a local unix domain socket.
// Each call dials a fresh connection, writes the encoded request, shuts
// down the write side, and reads the response to EOF.
type Socket struct {
	path    string
	timeout time.Duration
}

// NewSocket returns a Socket transport.
//
// If path is empty, defaults to DefaultSocketPath.
// If timeout is zero, defaults to DefaultTimeout.
func NewSocket(path string, timeout time.Duration) *Socket {
	if path == "" {
		path = DefaultSocketPath
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Socket{path: path, timeout: timeout}
}

// Path returns the socket path this transport dials.
func (s *Socket) Path() string {
	return s.path
}

func (s *Socket) dial(ctx context.Context) (*net.UnixConn, error) {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, s.path, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s is not a unix socket", ErrUnavailable, s.path)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = uc.SetDeadline(deadline)
	}
	return uc, nil
}

// send writes the encoded request and closes the write side, signalling
// the service that the request is complete.
func (s *Socket) send(conn *net.UnixConn, dest, method, arg string, payload []byte) error {
	buf, err := wire.Encode(wire.Request{
		Method:  method,
		Dest:    dest,
		Arg:     arg,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	if err := conn.CloseWrite(); err != nil {
		return fmt.Errorf("%w: close write side: %v", ErrUnavailable, err)
	}
	return nil
}

// Call performs one complete exchange.
func (s *Socket) Call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err := s.send(conn, dest, method, arg, payload); err != nil {
		return nil, err
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// Open starts a long-lived call and hands the connection back as the
// response stream. The caller owns the connection and cancels the call by
// closing it.
func (s *Socket) Open(ctx context.Context, dest, method, arg string) (io.ReadCloser, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.send(conn, dest, method, arg, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// The per-call deadline does not apply to the feed: it stays open
	// until either side closes it.
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

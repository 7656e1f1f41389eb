package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"
)

// serveOnce accepts one connection, reads the request to EOF, and writes
// the canned response before closing.
func serveOnce(t *testing.T, ln *net.UnixListener, response []byte, gotReq chan<- []byte) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		req, err := io.ReadAll(conn)
		if err != nil {
			return
		}
		if gotReq != nil {
			gotReq <- req
		}
		_, _ = conn.Write(response)
	}()
}

func listen(t *testing.T) (*net.UnixListener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qubesd.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln, path
}

func TestSocketCall(t *testing.T) {
	ln, path := listen(t)
	gotReq := make(chan []byte, 1)
	serveOnce(t, ln, []byte("0vm1 class=AppVM state=Running\n"), gotReq)

	s := NewSocket(path, time.Second)
	resp, err := s.Call(context.Background(), "dom0", "admin.vm.List", "", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if want := []byte("0vm1 class=AppVM state=Running\n"); !bytes.Equal(resp, want) {
		t.Errorf("Call() = %q, want %q", resp, want)
	}

	req := <-gotReq
	if want := []byte("admin.vm.List\x00dom0\x00\x00"); !bytes.Equal(req, want) {
		t.Errorf("request = %q, want %q", req, want)
	}
}

func TestSocketCallWithPayload(t *testing.T) {
	ln, path := listen(t)
	gotReq := make(chan []byte, 1)
	serveOnce(t, ln, []byte("0"), gotReq)

	s := NewSocket(path, time.Second)
	if _, err := s.Call(context.Background(), "work", "admin.vm.property.Set", "memory", []byte("1024")); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	req := <-gotReq
	if want := []byte("admin.vm.property.Set\x00work\x00memory\x001024"); !bytes.Equal(req, want) {
		t.Errorf("request = %q, want %q", req, want)
	}
}

func TestSocketCallUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	s := NewSocket(path, 100*time.Millisecond)
	_, err := s.Call(context.Background(), "dom0", "admin.vm.List", "", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Call() error = %v, want ErrUnavailable", err)
	}
}

func TestSocketCallContextTimeout(t *testing.T) {
	ln, path := listen(t)
	// Accept but never respond; the context deadline must break the read.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, _ = io.ReadAll(conn)
		time.Sleep(5 * time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s := NewSocket(path, time.Second)
	_, err := s.Call(ctx, "dom0", "admin.vm.List", "", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Call() error = %v, want ErrUnavailable", err)
	}
}

func TestSocketOpen(t *testing.T) {
	ln, path := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, _ = io.ReadAll(conn)
		_, _ = conn.Write([]byte("0"))
		_, _ = conn.Write([]byte("vm1 domain-start\n"))
	}()

	s := NewSocket(path, time.Second)
	rc, err := s.Open(context.Background(), "dom0", "admin.Events", "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = rc.Close() }()

	stream, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if want := []byte("0vm1 domain-start\n"); !bytes.Equal(stream, want) {
		t.Errorf("stream = %q, want %q", stream, want)
	}
}

func TestSocketDefaults(t *testing.T) {
	s := NewSocket("", 0)
	if s.Path() != DefaultSocketPath {
		t.Errorf("Path() = %q, want %q", s.Path(), DefaultSocketPath)
	}
	if s.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", s.timeout, DefaultTimeout)
	}
}

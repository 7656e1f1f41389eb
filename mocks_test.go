package quarry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// mockTransport is a scripted Transport for testing. Responses are raw
// wire bytes (status tag included) keyed by method, dest and arg; every
// call is recorded so tests can assert on exchange counts and payloads.
type mockTransport struct {
	mu        sync.Mutex
	calls     []mockCall
	responses map[string][]byte
	failures  map[string]error

	stream  io.ReadCloser
	openErr error
}

type mockCall struct {
	dest    string
	method  string
	arg     string
	payload []byte
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: make(map[string][]byte),
		failures:  make(map[string]error),
	}
}

func callKey(dest, method, arg string) string {
	return method + "|" + dest + "|" + arg
}

// respond scripts a raw response for one (method, dest, arg) triple.
func (m *mockTransport) respond(dest, method, arg string, raw []byte) {
	m.mu.Lock()
	m.responses[callKey(dest, method, arg)] = raw
	m.mu.Unlock()
}

// respondOK scripts a success response with the given payload.
func (m *mockTransport) respondOK(dest, method, arg, payload string) {
	m.respond(dest, method, arg, []byte("0"+payload))
}

// respondError scripts a remote error response.
func (m *mockTransport) respondError(dest, method, arg, class, message string) {
	m.respond(dest, method, arg, []byte("2"+class+"\x00"+message+"\x00"))
}

// fail scripts a transport-level failure.
func (m *mockTransport) fail(dest, method, arg string, err error) {
	m.mu.Lock()
	m.failures[callKey(dest, method, arg)] = err
	m.mu.Unlock()
}

func (m *mockTransport) Call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{dest: dest, method: method, arg: arg, payload: payload})

	key := callKey(dest, method, arg)
	if err, ok := m.failures[key]; ok {
		return nil, err
	}
	raw, ok := m.responses[key]
	if !ok {
		return nil, fmt.Errorf("unscripted call %s to %s (arg %q)", method, dest, arg)
	}
	return raw, nil
}

func (m *mockTransport) Open(ctx context.Context, dest, method, arg string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{dest: dest, method: method, arg: arg})
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.stream == nil {
		return nil, fmt.Errorf("unscripted open %s to %s", method, dest)
	}
	return m.stream, nil
}

// count returns how many calls matched the (method, dest, arg) triple.
func (m *mockTransport) count(dest, method, arg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.dest == dest && c.method == method && c.arg == arg {
			n++
		}
	}
	return n
}

// lastPayload returns the payload of the most recent call matching the
// triple, and whether any call matched.
func (m *mockTransport) lastPayload(dest, method, arg string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		c := m.calls[i]
		if c.dest == dest && c.method == method && c.arg == arg {
			return c.payload, true
		}
	}
	return nil, false
}

// streamFrom scripts the event feed from a literal byte stream.
func (m *mockTransport) streamFrom(raw string) {
	m.mu.Lock()
	m.stream = io.NopCloser(strings.NewReader(raw))
	m.mu.Unlock()
}

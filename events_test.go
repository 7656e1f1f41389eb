package quarry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/quarry/qerr"
	"github.com/jbweber/quarry/wire"
)

func TestOpenEventsStreaming(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0dom0 connection-established\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StreamStreaming, s.State())

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "connection-established", ev.Name)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, StreamClosed, s.State())
}

func TestOpenEventsRefused(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("2PermissionDenied\x00not allowed by policy\x00")
	c := New(m)

	_, err := c.OpenEvents(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrPermissionDenied))
}

func TestEventInvalidatesTrackedVMProperty(t *testing.T) {
	m := newMockTransport()
	m.respondOK("dom0", "admin.vm.List", "", "vm1 class=AppVM state=Running\n")
	m.respondOK("vm1", "admin.vm.property.List", "", "memory type=int settable=True\n")
	m.respondOK("vm1", "admin.vm.property.Get", "memory", "512")
	m.streamFrom("0vm1 property-set:memory memory=1024\n")
	c := New(m)

	ctx := context.Background()
	vm, err := c.Domains.Get(ctx, "vm1")
	require.NoError(t, err)

	v, err := vm.GetProperty(ctx, "memory")
	require.NoError(t, err)
	assert.Equal(t, int64(512), v.Int)
	require.True(t, vm.props.cached("memory"))

	s, err := c.OpenEvents(ctx)
	require.NoError(t, err)

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "property-set:memory", ev.Name)

	// The stale entry is gone; the next read issues a fresh call.
	assert.False(t, vm.props.cached("memory"))
	m.respondOK("vm1", "admin.vm.property.Get", "memory", "1024")
	v, err = vm.GetProperty(ctx, "memory")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), v.Int)
	assert.Equal(t, 2, m.count("vm1", "admin.vm.property.Get", "memory"))
}

func TestEventInvalidatesExactEntryOnly(t *testing.T) {
	m := newMockTransport()
	m.respondOK("dom0", "admin.vm.List", "", "vm1 class=AppVM state=Running\nvm2 class=AppVM state=Running\n")
	for _, dest := range []string{"vm1", "vm2"} {
		m.respondOK(dest, "admin.vm.property.List", "",
			"memory type=int settable=True\nvcpus type=int settable=True\n")
		m.respondOK(dest, "admin.vm.property.Get", "memory", "512")
		m.respondOK(dest, "admin.vm.property.Get", "vcpus", "2")
	}
	m.streamFrom("0vm1 property-reset:memory\n")
	c := New(m)

	ctx := context.Background()
	vm1, err := c.Domains.Get(ctx, "vm1")
	require.NoError(t, err)
	vm2, err := c.Domains.Get(ctx, "vm2")
	require.NoError(t, err)

	for _, vm := range []*VM{vm1, vm2} {
		for _, prop := range []string{"memory", "vcpus"} {
			_, err := vm.GetProperty(ctx, prop)
			require.NoError(t, err)
		}
	}

	s, err := c.OpenEvents(ctx)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	// Only (vm1, memory) is dropped.
	assert.False(t, vm1.props.cached("memory"))
	assert.True(t, vm1.props.cached("vcpus"))
	assert.True(t, vm2.props.cached("memory"))
	assert.True(t, vm2.props.cached("vcpus"))
}

func TestEventInvalidatesGlobalProperty(t *testing.T) {
	m := newMockTransport()
	m.respondOK("dom0", "admin.property.List", "", "default_kernel type=str settable=True\n")
	m.respondOK("dom0", "admin.property.Get", "default_kernel", "5.15")
	m.streamFrom("0dom0 property-set:default_kernel default_kernel=6.1\n")
	c := New(m)

	ctx := context.Background()
	_, err := c.GetProperty(ctx, "default_kernel")
	require.NoError(t, err)
	require.True(t, c.props.cached("default_kernel"))

	s, err := c.OpenEvents(ctx)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	assert.False(t, c.props.cached("default_kernel"))
}

func TestEventUntrackedSubjectIgnored(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0stranger property-set:memory memory=1024\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	// Nobody tracks "stranger"; the event passes through without effect.
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "stranger", ev.Subject)
}

func TestEventDomainLifecycleDropsProxy(t *testing.T) {
	m := newMockTransport()
	m.respondOK("dom0", "admin.vm.List", "", "vm1 class=AppVM state=Running\n")
	m.streamFrom("0dom0 domain-delete vm=vm1\n")
	c := New(m)

	ctx := context.Background()
	_, err := c.Domains.Get(ctx, "vm1")
	require.NoError(t, err)

	s, err := c.OpenEvents(ctx)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	// The vm attribute names the machine; its memoized proxy is evicted.
	_, tracked := c.Domains.proxy("vm1")
	assert.False(t, tracked)
}

func TestEventHandlers(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0vm1 domain-start\nvm1 domain-shutdown\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	var seen []string
	token := s.AddHandler(func(ev wire.Event) error {
		seen = append(seen, ev.Name)
		return nil
	})

	_, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"domain-start"}, seen)

	require.True(t, s.RemoveHandler(token))
	assert.False(t, s.RemoveHandler(token))

	_, err = s.Next()
	require.NoError(t, err)
	// Removed before the second record; nothing more is seen.
	assert.Equal(t, []string{"domain-start"}, seen)
}

func TestEventHandlerErrorDoesNotStopStream(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0vm1 domain-start\nvm1 domain-shutdown\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	handlerErr := errors.New("handler exploded")
	var hookToken string
	var hookErr error
	s.HandlerErrorHook = func(token string, ev wire.Event, err error) {
		hookToken = token
		hookErr = err
	}

	token := s.AddHandler(func(ev wire.Event) error { return handlerErr })
	var after []string
	s.AddHandler(func(ev wire.Event) error {
		after = append(after, ev.Name)
		return nil
	})

	// Both records flow despite the failing handler, and later handlers
	// still run for each.
	for _, want := range []string{"domain-start", "domain-shutdown"} {
		ev, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, want, ev.Name)
	}
	assert.Equal(t, []string{"domain-start", "domain-shutdown"}, after)
	assert.Equal(t, token, hookToken)
	assert.Equal(t, handlerErr, hookErr)
}

func TestEventStreamFaults(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0vm1 domain-start\ngarbage-without-event\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, wire.ErrProtocol))
	assert.Equal(t, StreamFaulted, s.State())

	// The stream stays faulted and keeps returning the same error.
	_, err2 := s.Next()
	assert.Equal(t, err, err2)
}

func TestEventStreamCloseUnblocksNext(t *testing.T) {
	pr, pw := io.Pipe()
	m := newMockTransport()
	m.stream = pr
	c := New(m)

	go func() {
		_, _ = pw.Write([]byte("0"))
	}()

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	_ = pw.Close()

	select {
	case err := <-done:
		// Close is cancellation, not failure.
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	assert.Equal(t, StreamClosed, s.State())

	// Closing again is a no-op.
	assert.NoError(t, s.Close())
}

func TestEventStreamRun(t *testing.T) {
	m := newMockTransport()
	m.streamFrom("0vm1 domain-start\nvm1 domain-shutdown\n")
	c := New(m)

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	var seen int
	s.AddHandler(func(ev wire.Event) error {
		seen++
		return nil
	})

	// The feed ends by peer close; Run returns nil.
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, seen)
	assert.Equal(t, StreamClosed, s.State())
}

func TestEventStreamRunContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	m := newMockTransport()
	m.stream = pr
	c := New(m)

	go func() {
		_, _ = pw.Write([]byte("0"))
	}()

	s, err := c.OpenEvents(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	_ = pw.Close()

	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamStateString(t *testing.T) {
	tests := []struct {
		state StreamState
		want  string
	}{
		{StreamDisconnected, "disconnected"},
		{StreamConnecting, "connecting"},
		{StreamStreaming, "streaming"},
		{StreamClosed, "closed"},
		{StreamFaulted, "faulted"},
		{StreamState(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

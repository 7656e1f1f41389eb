package quarry

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/jbweber/quarry/wire"
)

// StreamState is the event stream's lifecycle state.
type StreamState int32

const (
	// StreamDisconnected is the state before Connect.
	StreamDisconnected StreamState = iota
	// StreamConnecting means the feed call is being opened.
	StreamConnecting
	// StreamStreaming means records are flowing.
	StreamStreaming
	// StreamClosed means the feed ended cleanly (peer close or Close).
	StreamClosed
	// StreamFaulted means a malformed frame ended the feed. Silent loss
	// of cache-invalidation signals is worse than stopping.
	StreamFaulted
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamStreaming:
		return "streaming"
	case StreamClosed:
		return "closed"
	case StreamFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Handler reacts to one event record. A handler's error is reported but
// never terminates the stream: one event is independent of the next.
type Handler func(ev wire.Event) error

type handlerReg struct {
	token string
	fn    Handler
}

// EventStream consumes the service's event feed and drives cache
// invalidation for the proxies its Client tracks. Consume it either by
// calling Next in a loop or by handing it a goroutine with Run.
//
// The service emits a "connection-established" record as the first event;
// it passes through like any other.
type EventStream struct {
	c  *Client
	rc io.ReadCloser
	er *wire.EventReader

	mu       sync.Mutex
	state    StreamState
	faultErr error
	handlers []handlerReg

	// HandlerErrorHook, if set, receives every handler failure along with
	// the registration token and the record being handled. Failures are
	// also logged through the client's logger.
	HandlerErrorHook func(token string, ev wire.Event, err error)
}

// OpenEvents opens the long-lived feed call. On success the stream is in
// the streaming state and records can be read with Next.
func (c *Client) OpenEvents(ctx context.Context) (*EventStream, error) {
	s := &EventStream{c: c, state: StreamConnecting}
	rc, err := c.t.Open(ctx, wire.GlobalDest, "admin.Events", "")
	if err != nil {
		s.state = StreamDisconnected
		return nil, err
	}
	er := wire.NewEventReader(rc)
	if err := er.ReadTag(); err != nil {
		_ = rc.Close()
		s.state = StreamDisconnected
		return nil, err
	}
	s.rc = rc
	s.er = er
	s.state = StreamStreaming
	return s, nil
}

// State returns the stream's current state.
func (s *EventStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EventStream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// AddHandler registers a callback invoked for every record, in arrival
// order, after cache invalidation has been applied. It returns a token
// for RemoveHandler.
func (s *EventStream) AddHandler(h Handler) string {
	token := uuid.New().String()
	s.mu.Lock()
	s.handlers = append(s.handlers, handlerReg{token: token, fn: h})
	s.mu.Unlock()
	return token
}

// RemoveHandler unregisters a callback. It reports whether the token was
// registered.
func (s *EventStream) RemoveHandler(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, reg := range s.handlers {
		if reg.token == token {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Next returns the next event record, after applying its cache
// invalidation and invoking registered handlers. It returns io.EOF once
// the feed has ended cleanly — by peer close or by Close — and a protocol
// error once a malformed frame has faulted the stream.
func (s *EventStream) Next() (wire.Event, error) {
	s.mu.Lock()
	switch s.state {
	case StreamClosed:
		s.mu.Unlock()
		return wire.Event{}, io.EOF
	case StreamFaulted:
		err := s.faultErr
		s.mu.Unlock()
		return wire.Event{}, err
	}
	s.mu.Unlock()

	ev, err := s.er.Next()
	if err == io.EOF {
		s.setState(StreamClosed)
		return wire.Event{}, io.EOF
	}
	if err != nil {
		s.mu.Lock()
		// Close during a blocked read surfaces as a read error on the
		// closed channel; that is cancellation, not a fault.
		if s.state == StreamClosed {
			s.mu.Unlock()
			return wire.Event{}, io.EOF
		}
		s.state = StreamFaulted
		s.faultErr = err
		s.mu.Unlock()
		return wire.Event{}, err
	}

	s.apply(ev)
	s.dispatch(ev)
	return ev, nil
}

// Run consumes the stream until it ends. It returns nil after a clean
// close, the fault error after a malformed frame, and the context error
// if ctx ends the stream first.
func (s *EventStream) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()

	for {
		_, err := s.Next()
		if err == io.EOF {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
}

// Close ends the feed. A consumer blocked in Next receives end-of-sequence,
// not an error. Closing an already-ended stream is a no-op.
func (s *EventStream) Close() error {
	s.mu.Lock()
	if s.state == StreamClosed || s.state == StreamFaulted {
		s.mu.Unlock()
		return nil
	}
	s.state = StreamClosed
	s.mu.Unlock()
	return s.rc.Close()
}

// apply invalidates exactly the cache entries the record names. Property
// change events clear the matching (entity, property) entry on the tracked
// proxy, if any; domain lifecycle events evict the memoized proxy (the
// collection listing itself is uncached, so there is nothing else to
// drop).
func (s *EventStream) apply(ev wire.Event) {
	if prop, ok := ev.Property(); ok {
		if ev.Subject == wire.GlobalDest {
			s.c.props.invalidate(prop)
		} else if vm, tracked := s.c.Domains.proxy(ev.Subject); tracked {
			vm.props.invalidate(prop)
		}
		return
	}
	switch ev.Name {
	case "domain-add", "domain-delete":
		// Lifecycle events name the machine in the vm attribute when the
		// subject is the service itself.
		name := ev.Subject
		if v, ok := ev.Get("vm"); ok {
			name = v
		}
		s.c.Domains.dropProxy(name)
	}
}

// dispatch invokes registered handlers in registration order. Handler
// failures are reported, never propagated: they must not abort the stream.
func (s *EventStream) dispatch(ev wire.Event) {
	s.mu.Lock()
	regs := make([]handlerReg, len(s.handlers))
	copy(regs, s.handlers)
	hook := s.HandlerErrorHook
	s.mu.Unlock()

	for _, reg := range regs {
		if err := reg.fn(ev); err != nil {
			s.c.log.Warn("event handler failed",
				"handler", reg.token,
				"event", ev.Name,
				"subject", ev.Subject,
				"error", err)
			if hook != nil {
				hook(reg.token, ev, err)
			}
		}
	}
}

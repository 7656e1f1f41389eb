package wire

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Event is one record from the service's event feed. Frames are
// newline-terminated and space-delimited:
//
//	subject event key=value key=value ...
//
// Subject "dom0" denotes a service-wide event. Attribute order is
// significant and preserved.
type Event struct {
	Subject string
	Name    string
	Pairs   []Pair
}

// Pair is one ordered key=value event attribute.
type Pair struct {
	Key   string
	Value string
}

// Get returns the value for the first attribute named key, and whether it
// was present.
func (e Event) Get(key string) (string, bool) {
	for _, p := range e.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Property returns the property name carried by property change events
// ("property-set:NAME", "property-reset:NAME") and whether the event is
// one. Cache invalidation keys off this.
func (e Event) Property() (string, bool) {
	for _, prefix := range []string{"property-set:", "property-reset:"} {
		if rest, ok := strings.CutPrefix(e.Name, prefix); ok && rest != "" {
			return rest, true
		}
	}
	return "", false
}

// ParseEvent decodes one event frame (without the trailing newline).
func ParseEvent(line string) (Event, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return Event{}, fmt.Errorf("%w: malformed event frame %q", ErrProtocol, line)
	}
	ev := Event{Subject: fields[0], Name: fields[1]}
	for _, f := range fields[2:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return Event{}, fmt.Errorf("%w: malformed event attribute %q in frame %q",
				ErrProtocol, f, line)
		}
		ev.Pairs = append(ev.Pairs, Pair{Key: key, Value: value})
	}
	return ev, nil
}

// EventReader decodes the event feed byte stream: a leading status tag
// (the feed opens like any other call) followed by newline-terminated
// frames until the peer closes.
type EventReader struct {
	br *bufio.Reader
}

// NewEventReader wraps r. ReadTag must be called once before Next.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{br: bufio.NewReader(r)}
}

// ReadTag consumes the feed's status tag. A '2' tag means the service
// refused the feed; the rest of the stream is then parsed as a regular
// error response. An immediate close or an unknown tag is a protocol error.
func (er *EventReader) ReadTag() error {
	tag, err := er.br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: stream closed before status tag", ErrProtocol)
	}
	switch tag {
	case TagOK:
		return nil
	case TagError:
		rest, err := io.ReadAll(er.br)
		if err != nil {
			return fmt.Errorf("%w: truncated error response", ErrProtocol)
		}
		_, perr := ParseResponse(append([]byte{TagError}, rest...))
		return perr
	default:
		return fmt.Errorf("%w: unrecognized status tag %#x", ErrProtocol, tag)
	}
}

// Next returns the next event. It returns io.EOF when the peer closed the
// stream cleanly on a frame boundary, and a protocol error for a malformed
// or truncated frame.
func (er *EventReader) Next() (Event, error) {
	line, err := er.br.ReadString('\n')
	if err == io.EOF {
		if line != "" {
			return Event{}, fmt.Errorf("%w: truncated event frame %q", ErrProtocol, line)
		}
		return Event{}, io.EOF
	}
	if err != nil {
		return Event{}, err
	}
	return ParseEvent(strings.TrimSuffix(line, "\n"))
}

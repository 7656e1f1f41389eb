package quarry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jbweber/quarry/qerr"
	"github.com/jbweber/quarry/wire"
)

// PropertyType tags the declared type of a property. The tags are the wire
// tokens the service uses in property descriptors.
type PropertyType string

const (
	// TypeString is free-form text.
	TypeString PropertyType = "str"
	// TypeBool is a boolean, "True" or "False" on the wire.
	TypeBool PropertyType = "bool"
	// TypeInt is a signed integer.
	TypeInt PropertyType = "int"
	// TypeSize is a size in bytes, a non-negative integer on the wire.
	TypeSize PropertyType = "size"
	// TypeLabel references a label by name.
	TypeLabel PropertyType = "label"
	// TypeVM references another machine by name; empty means "none".
	TypeVM PropertyType = "vm"
)

// PropertyDescriptor describes one declared property: its name, type tag
// and whether the service accepts writes to it. The descriptor set is
// closed — property names are validated against it before any call is
// issued.
type PropertyDescriptor struct {
	Name     string       `yaml:"name" json:"name"`
	Type     PropertyType `yaml:"type" json:"type"`
	Settable bool         `yaml:"settable" json:"settable"`
}

// Value is one typed property value. Exactly the field matching Type is
// meaningful: Str for str/label/vm, Int for int/size, Bool for bool.
type Value struct {
	Type PropertyType
	Str  string
	Int  int64
	Bool bool
}

// String renders the value in its wire format. Formatting and parsing
// round-trip for every type.
func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case TypeInt, TypeSize:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Str
	}
}

// StringValue builds a str-typed Value.
func StringValue(s string) Value { return Value{Type: TypeString, Str: s} }

// IntValue builds an int-typed Value.
func IntValue(i int64) Value { return Value{Type: TypeInt, Int: i} }

// SizeValue builds a size-typed Value.
func SizeValue(n int64) Value { return Value{Type: TypeSize, Int: n} }

// BoolValue builds a bool-typed Value.
func BoolValue(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// LabelValue builds a label-reference Value.
func LabelValue(name string) Value { return Value{Type: TypeLabel, Str: name} }

// VMValue builds a machine-reference Value.
func VMValue(name string) Value { return Value{Type: TypeVM, Str: name} }

// ParseValue parses a raw wire value according to the declared type. An
// unparseable value is a protocol error, never a silently wrong value.
func ParseValue(t PropertyType, raw string) (Value, error) {
	switch t {
	case TypeString, TypeLabel, TypeVM:
		return Value{Type: t, Str: raw}, nil
	case TypeBool:
		switch raw {
		case "True":
			return Value{Type: t, Bool: true}, nil
		case "False":
			return Value{Type: t, Bool: false}, nil
		}
		return Value{}, fmt.Errorf("%w: invalid bool value %q", wire.ErrProtocol, raw)
	case TypeInt, TypeSize:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid %s value %q", wire.ErrProtocol, t, raw)
		}
		if t == TypeSize && i < 0 {
			return Value{}, fmt.Errorf("%w: negative size value %q", wire.ErrProtocol, raw)
		}
		return Value{Type: t, Int: i}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown property type %q", wire.ErrProtocol, t)
	}
}

// propertySet is the property engine behind one proxy: the declared
// descriptor set, fetched once, plus the value cache. A mutex guards both
// so the event goroutine's invalidation cannot race caller reads.
type propertySet struct {
	c      *Client
	dest   string
	prefix string

	mu    sync.Mutex
	descs map[string]PropertyDescriptor
	cache map[string]Value
}

func newPropertySet(c *Client, dest, prefix string) *propertySet {
	return &propertySet{
		c:      c,
		dest:   dest,
		prefix: prefix,
		cache:  make(map[string]Value),
	}
}

// descriptors returns the declared property set, fetching it on first use.
// Lines are "<name> type=<type> settable=<True|False>".
func (p *propertySet) descriptors(ctx context.Context) (map[string]PropertyDescriptor, error) {
	p.mu.Lock()
	descs := p.descs
	p.mu.Unlock()
	if descs != nil {
		return descs, nil
	}

	body, err := p.c.call(ctx, p.dest, p.prefix+"List", "", nil)
	if err != nil {
		return nil, err
	}
	descs = make(map[string]PropertyDescriptor)
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		d, err := parseDescriptor(line)
		if err != nil {
			return nil, err
		}
		descs[d.Name] = d
	}

	p.mu.Lock()
	p.descs = descs
	p.mu.Unlock()
	return descs, nil
}

func parseDescriptor(line string) (PropertyDescriptor, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 || fields[0] == "" {
		return PropertyDescriptor{}, fmt.Errorf("%w: malformed property descriptor %q",
			wire.ErrProtocol, line)
	}
	d := PropertyDescriptor{Name: fields[0]}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return PropertyDescriptor{}, fmt.Errorf("%w: malformed property descriptor %q",
				wire.ErrProtocol, line)
		}
		switch key {
		case "type":
			switch t := PropertyType(value); t {
			case TypeString, TypeBool, TypeInt, TypeSize, TypeLabel, TypeVM:
				d.Type = t
			default:
				return PropertyDescriptor{}, fmt.Errorf("%w: unknown property type %q in %q",
					wire.ErrProtocol, value, line)
			}
		case "settable":
			d.Settable = value == "True"
		default:
			return PropertyDescriptor{}, fmt.Errorf("%w: unknown descriptor field %q in %q",
				wire.ErrProtocol, key, line)
		}
	}
	return d, nil
}

// Descriptors returns the declared descriptors sorted by name.
func (p *propertySet) Descriptors(ctx context.Context) ([]PropertyDescriptor, error) {
	descs, err := p.descriptors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PropertyDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// descriptor validates a property name against the declared set.
func (p *propertySet) descriptor(ctx context.Context, name string) (PropertyDescriptor, error) {
	descs, err := p.descriptors(ctx)
	if err != nil {
		return PropertyDescriptor{}, err
	}
	d, ok := descs[name]
	if !ok {
		return PropertyDescriptor{}, fmt.Errorf("property %q on %s: %w",
			name, p.dest, qerr.ErrNoSuchProperty)
	}
	return d, nil
}

// Get returns the property value, serving from cache when a fresh entry
// exists. A cache miss issues one call, parses the payload into the
// declared type, stores it and returns it.
func (p *propertySet) Get(ctx context.Context, name string) (Value, error) {
	d, err := p.descriptor(ctx, name)
	if err != nil {
		return Value{}, err
	}

	p.mu.Lock()
	v, ok := p.cache[name]
	p.mu.Unlock()
	if ok {
		return v, nil
	}

	body, err := p.c.call(ctx, p.dest, p.prefix+"Get", name, nil)
	if err != nil {
		return Value{}, err
	}
	v, err = ParseValue(d.Type, string(body))
	if err != nil {
		return Value{}, fmt.Errorf("property %q on %s: %w", name, p.dest, err)
	}

	p.mu.Lock()
	p.cache[name] = v
	p.mu.Unlock()
	return v, nil
}

// GetDefault returns the property's computed default value, uncached.
func (p *propertySet) GetDefault(ctx context.Context, name string) (Value, error) {
	d, err := p.descriptor(ctx, name)
	if err != nil {
		return Value{}, err
	}
	body, err := p.c.call(ctx, p.dest, p.prefix+"GetDefault", name, nil)
	if err != nil {
		return Value{}, err
	}
	v, err := ParseValue(d.Type, string(body))
	if err != nil {
		return Value{}, fmt.Errorf("property %q on %s: %w", name, p.dest, err)
	}
	return v, nil
}

// IsDefault reports whether the property currently holds its computed
// default rather than an explicitly set value.
func (p *propertySet) IsDefault(ctx context.Context, name string) (bool, error) {
	if _, err := p.descriptor(ctx, name); err != nil {
		return false, err
	}
	body, err := p.c.call(ctx, p.dest, p.prefix+"IsDefault", name, nil)
	if err != nil {
		return false, err
	}
	switch string(body) {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return false, fmt.Errorf("%w: invalid IsDefault response %q", wire.ErrProtocol, body)
}

// Set writes the property. On success the cache is updated in place: the
// service is the source of truth, but a successful write is assumed echoed
// correctly, so no read-back call is issued.
func (p *propertySet) Set(ctx context.Context, name string, v Value) error {
	d, err := p.descriptor(ctx, name)
	if err != nil {
		return err
	}
	if !d.Settable {
		return fmt.Errorf("property %q on %s: %w", name, p.dest, qerr.ErrReadOnly)
	}
	if v.Type != d.Type {
		return fmt.Errorf("property %q on %s: value type %q does not match declared %q: %w",
			name, p.dest, v.Type, d.Type, qerr.ErrValidationFailed)
	}

	if _, err := p.c.call(ctx, p.dest, p.prefix+"Set", name, []byte(v.String())); err != nil {
		return err
	}

	p.mu.Lock()
	p.cache[name] = v
	p.mu.Unlock()
	return nil
}

// Reset reverts the property to its computed default and drops the cached
// entry, forcing a fresh call on the next read.
func (p *propertySet) Reset(ctx context.Context, name string) error {
	if _, err := p.descriptor(ctx, name); err != nil {
		return err
	}
	if _, err := p.c.call(ctx, p.dest, p.prefix+"Reset", name, nil); err != nil {
		return err
	}
	p.invalidate(name)
	return nil
}

// invalidate drops one cached entry. A missing entry forces a fresh call
// before the next read, which is exactly the cache's validity rule.
func (p *propertySet) invalidate(name string) {
	p.mu.Lock()
	delete(p.cache, name)
	p.mu.Unlock()
}

// cached reports whether a fresh entry for name exists, for tests.
func (p *propertySet) cached(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cache[name]
	return ok
}

func (p *propertySet) GetString(ctx context.Context, name string) (string, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return "", err
	}
	switch v.Type {
	case TypeString, TypeLabel, TypeVM:
		return v.Str, nil
	}
	return "", fmt.Errorf("property %q is %s, not a string", name, v.Type)
}

func (p *propertySet) GetInt(ctx context.Context, name string) (int64, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	if v.Type != TypeInt && v.Type != TypeSize {
		return 0, fmt.Errorf("property %q is %s, not an integer", name, v.Type)
	}
	return v.Int, nil
}

func (p *propertySet) GetBool(ctx context.Context, name string) (bool, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if v.Type != TypeBool {
		return false, fmt.Errorf("property %q is %s, not a bool", name, v.Type)
	}
	return v.Bool, nil
}

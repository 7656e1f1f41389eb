package quarry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jbweber/quarry/qerr"
	"github.com/jbweber/quarry/transport"
	"github.com/jbweber/quarry/wire"
)

// Client is a handle on the management service. It is itself the proxy for
// the service's own (global) properties, and the root of every other proxy:
// machines through Domains, labels through Labels, storage pools through
// Pools.
//
// A Client holds no connection state — each call opens its own transport
// session — so one Client may be shared between goroutines.
type Client struct {
	t   transport.Transport
	log *slog.Logger

	// Domains is the collection of managed machines.
	Domains *VMCollection
	// Labels is the collection of entity labels.
	Labels *LabelCollection
	// Pools is the collection of storage pools.
	Pools *PoolCollection

	props *propertySet
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger the client and its event streams
// report through. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New returns a Client that issues calls through t.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		t:   t,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.props = newPropertySet(c, wire.GlobalDest, "admin.property.")
	c.Domains = newVMCollection(c)
	c.Labels = &LabelCollection{c: c}
	c.Pools = &PoolCollection{c: c}
	return c
}

// call performs one complete exchange: the transport carries the encoded
// request, and the raw response is decoded into a success payload, a
// mapped remote error, or a protocol error.
func (c *Client) call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error) {
	raw, err := c.t.Call(ctx, dest, method, arg, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, dest, err)
	}
	body, err := wire.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, dest, err)
	}
	c.log.Debug("admin call", "method", method, "dest", dest, "arg", arg,
		"response_bytes", len(body))
	return body, nil
}

// GetProperty returns a global property, served from cache when fresh.
func (c *Client) GetProperty(ctx context.Context, name string) (Value, error) {
	return c.props.Get(ctx, name)
}

// SetProperty writes a global property.
func (c *Client) SetProperty(ctx context.Context, name string, v Value) error {
	return c.props.Set(ctx, name, v)
}

// ResetProperty reverts a global property to its computed default.
func (c *Client) ResetProperty(ctx context.Context, name string) error {
	return c.props.Reset(ctx, name)
}

// PropertyIsDefault reports whether a global property currently holds its
// computed default rather than an explicitly set value.
func (c *Client) PropertyIsDefault(ctx context.Context, name string) (bool, error) {
	return c.props.IsDefault(ctx, name)
}

// Properties returns the declared global property descriptors, sorted by
// name.
func (c *Client) Properties(ctx context.Context) ([]PropertyDescriptor, error) {
	return c.props.Descriptors(ctx)
}

// GetString is GetProperty constrained to string-typed properties.
func (c *Client) GetString(ctx context.Context, name string) (string, error) {
	return c.props.GetString(ctx, name)
}

// GetInt is GetProperty constrained to integer-typed properties.
func (c *Client) GetInt(ctx context.Context, name string) (int64, error) {
	return c.props.GetInt(ctx, name)
}

// GetBool is GetProperty constrained to boolean-typed properties.
func (c *Client) GetBool(ctx context.Context, name string) (bool, error) {
	return c.props.GetBool(ctx, name)
}

// NewVMOptions controls machine creation.
type NewVMOptions struct {
	// Template names the template machine, for classes that use one.
	Template string
	// Pool places all volumes of the new machine in one storage pool.
	Pool string
	// Pools places specific volumes ("private", "root", ...) in specific
	// pools. Mutually exclusive with Pool.
	Pools map[string]string
}

// NewVM creates a machine of the given class, name and label and returns
// its proxy.
func (c *Client) NewVM(ctx context.Context, class, name, label string, opts NewVMOptions) (*VM, error) {
	if opts.Pool != "" && len(opts.Pools) > 0 {
		return nil, fmt.Errorf("only one of Pool and Pools can be used")
	}

	method := "admin.vm.Create." + class
	payload := fmt.Sprintf("name=%s label=%s", name, label)
	if opts.Pool != "" {
		payload += " pool=" + opts.Pool
		method = "admin.vm.CreateInPool." + class
	}
	if len(opts.Pools) > 0 {
		payload += volumePoolPairs(opts.Pools)
		method = "admin.vm.CreateInPool." + class
	}

	if _, err := c.call(ctx, wire.GlobalDest, method, opts.Template,
		[]byte(payload)); err != nil {
		return nil, err
	}
	c.Domains.dropProxy(name)
	return c.Domains.Get(ctx, name)
}

// CloneVMOptions controls machine cloning.
type CloneVMOptions struct {
	// Pool places all volumes of the clone in one storage pool.
	Pool string
	// Pools places specific volumes in specific pools. Mutually exclusive
	// with Pool.
	Pools map[string]string
}

// CloneVM clones the machine named src into newName and returns the new
// machine's proxy.
func (c *Client) CloneVM(ctx context.Context, src, newName string, opts CloneVMOptions) (*VM, error) {
	if opts.Pool != "" && len(opts.Pools) > 0 {
		return nil, fmt.Errorf("only one of Pool and Pools can be used")
	}

	method := "admin.vm.Clone"
	payload := "name=" + newName
	if opts.Pool != "" {
		payload += " pool=" + opts.Pool
		method = "admin.vm.CloneInPool"
	}
	if len(opts.Pools) > 0 {
		payload += volumePoolPairs(opts.Pools)
		method = "admin.vm.CloneInPool"
	}

	if _, err := c.call(ctx, src, method, "", []byte(payload)); err != nil {
		return nil, err
	}
	return c.Domains.Get(ctx, newName)
}

// volumePoolPairs renders per-volume pool placement, sorted by volume name
// so the payload is deterministic.
func volumePoolPairs(pools map[string]string) string {
	volumes := make([]string, 0, len(pools))
	for vol := range pools {
		volumes = append(volumes, vol)
	}
	sort.Strings(volumes)

	var b strings.Builder
	for _, vol := range volumes {
		fmt.Fprintf(&b, " pool:%s=%s", vol, pools[vol])
	}
	return b.String()
}

// GetLabel finds a label by name, or by numeric index when no label of
// that name exists.
func (c *Client) GetLabel(ctx context.Context, label string) (*Label, error) {
	l, err := c.Labels.Get(ctx, label)
	if err == nil {
		return l, nil
	}
	if !isDigits(label) {
		return nil, err
	}

	names, lerr := c.Labels.Names(ctx)
	if lerr != nil {
		return nil, lerr
	}
	for _, name := range names {
		candidate := &Label{c: c, name: name}
		idx, ierr := candidate.Index(ctx)
		if ierr != nil {
			return nil, ierr
		}
		if fmt.Sprintf("%d", idx) == label {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("label %q: %w", label, qerr.ErrNotFound)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

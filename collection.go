package quarry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jbweber/quarry/qerr"
	"github.com/jbweber/quarry/wire"
)

// VMInfo is one machine's entry in the service's listing.
type VMInfo struct {
	Name  string `yaml:"name" json:"name"`
	Class string `yaml:"class" json:"class"`
	State string `yaml:"state" json:"state"`
}

// VMCollection is the registry of managed machines. The listing itself is
// never cached — membership changes are the common case driving collection
// reads — but proxy objects are memoized per name, so every caller holding
// a machine obtained here shares one property cache.
type VMCollection struct {
	c *Client

	mu      sync.Mutex
	proxies map[string]*VM
}

func newVMCollection(c *Client) *VMCollection {
	return &VMCollection{c: c, proxies: make(map[string]*VM)}
}

// list issues a fresh admin.vm.List call and parses the entries.
func (col *VMCollection) list(ctx context.Context, dest string) ([]VMInfo, error) {
	body, err := col.c.call(ctx, dest, "admin.vm.List", "", nil)
	if err != nil {
		return nil, err
	}
	var infos []VMInfo
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		info, err := parseVMListLine(line)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// parseVMListLine decodes one "name class=<class> state=<state>" entry.
func parseVMListLine(line string) (VMInfo, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 2 || fields[0] == "" {
		return VMInfo{}, fmt.Errorf("%w: malformed list entry %q", wire.ErrProtocol, line)
	}
	info := VMInfo{Name: fields[0]}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return VMInfo{}, fmt.Errorf("%w: malformed list entry %q", wire.ErrProtocol, line)
		}
		switch key {
		case "class":
			info.Class = value
		case "state":
			info.State = value
		}
	}
	return info, nil
}

// List returns the names of all managed machines, sorted. Always a fresh
// call.
func (col *VMCollection) List(ctx context.Context) ([]string, error) {
	infos, err := col.list(ctx, wire.GlobalDest)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

// Info returns the full listing (name, class, state), sorted by name.
// Always a fresh call.
func (col *VMCollection) Info(ctx context.Context) ([]VMInfo, error) {
	return col.list(ctx, wire.GlobalDest)
}

// Has reports whether a machine of that name exists right now.
func (col *VMCollection) Has(ctx context.Context, name string) (bool, error) {
	infos, err := col.list(ctx, wire.GlobalDest)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the proxy for the named machine, verifying membership with a
// fresh listing. Repeated calls for the same name return the same proxy —
// and therefore the same property cache — unless the machine's class
// changed, which invalidates the memoized proxy.
func (col *VMCollection) Get(ctx context.Context, name string) (*VM, error) {
	infos, err := col.list(ctx, wire.GlobalDest)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		col.mu.Lock()
		defer col.mu.Unlock()
		vm, ok := col.proxies[name]
		if ok && vm.class == info.Class {
			return vm, nil
		}
		vm = newVM(col.c, name, info.Class)
		col.proxies[name] = vm
		return vm, nil
	}
	return nil, fmt.Errorf("machine %q: %w", name, qerr.ErrNotFound)
}

// Remove removes the named machine from the service and drops its
// memoized proxy.
func (col *VMCollection) Remove(ctx context.Context, name string) error {
	if _, err := col.c.call(ctx, name, "admin.vm.Remove", "", nil); err != nil {
		return err
	}
	col.dropProxy(name)
	return nil
}

// dropProxy evicts the memoized proxy for name, if any. Driven by
// creation/removal and by domain lifecycle events.
func (col *VMCollection) dropProxy(name string) {
	col.mu.Lock()
	delete(col.proxies, name)
	col.mu.Unlock()
}

// proxy returns the memoized proxy for name without issuing any call.
// The event client uses this to invalidate caches for machines somebody
// is actually tracking.
func (col *VMCollection) proxy(name string) (*VM, bool) {
	col.mu.Lock()
	defer col.mu.Unlock()
	vm, ok := col.proxies[name]
	return vm, ok
}

// Label is the proxy for one entity label. It knows only its name; color
// and index are fetched on demand.
type Label struct {
	c    *Client
	name string
}

// Name returns the label name.
func (l *Label) Name() string { return l.name }

func (l *Label) String() string { return l.name }

// Color returns the label's color as 0xRRGGBB.
func (l *Label) Color(ctx context.Context) (string, error) {
	body, err := l.c.call(ctx, wire.GlobalDest, "admin.label.Get", l.name, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(body), "\n"), nil
}

// Index returns the label's numeric index.
func (l *Label) Index(ctx context.Context) (int, error) {
	body, err := l.c.call(ctx, wire.GlobalDest, "admin.label.Index", l.name, nil)
	if err != nil {
		return 0, err
	}
	var idx int
	if _, err := fmt.Sscanf(strings.TrimSuffix(string(body), "\n"), "%d", &idx); err != nil {
		return 0, fmt.Errorf("%w: invalid label index %q", wire.ErrProtocol, body)
	}
	return idx, nil
}

// LabelCollection lists and resolves labels. Uncached: the label set is
// small and reads are rare.
type LabelCollection struct {
	c *Client
}

// Names returns all label names, sorted.
func (col *LabelCollection) Names(ctx context.Context) ([]string, error) {
	return col.c.listNames(ctx, "admin.label.List", "")
}

// Get returns the proxy for the named label, verifying it exists.
func (col *LabelCollection) Get(ctx context.Context, name string) (*Label, error) {
	names, err := col.Names(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return &Label{c: col.c, name: name}, nil
		}
	}
	return nil, fmt.Errorf("label %q: %w", name, qerr.ErrNotFound)
}

// PoolCollection lists and resolves storage pools. Uncached.
type PoolCollection struct {
	c *Client
}

// Names returns all pool names, sorted.
func (col *PoolCollection) Names(ctx context.Context) ([]string, error) {
	return col.c.listNames(ctx, "admin.pool.List", "")
}

// Get returns the proxy for the named pool, verifying it exists.
func (col *PoolCollection) Get(ctx context.Context, name string) (*Pool, error) {
	names, err := col.Names(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return &Pool{c: col.c, name: name}, nil
		}
	}
	return nil, fmt.Errorf("pool %q: %w", name, qerr.ErrNotFound)
}

// listNames issues a call whose payload is one name per line and returns
// the names sorted.
func (c *Client) listNames(ctx context.Context, method, arg string) ([]string, error) {
	body, err := c.call(ctx, wire.GlobalDest, method, arg, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	sort.Strings(names)
	return names, nil
}

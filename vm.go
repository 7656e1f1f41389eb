package quarry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jbweber/quarry/wire"
)

// PowerState describes a machine's current execution state as reported by
// the service's listing.
type PowerState string

const (
	// StateHalted means the machine is not active.
	StateHalted PowerState = "Halted"
	// StateTransient means the machine runs but its agent is not up yet.
	StateTransient PowerState = "Transient"
	// StateRunning means the machine is ready and running.
	StateRunning PowerState = "Running"
	// StatePaused means execution is paused.
	StatePaused PowerState = "Paused"
	// StateSuspended means the machine is S3-suspended.
	StateSuspended PowerState = "Suspended"
	// StateHalting means an OS shutdown is in progress.
	StateHalting PowerState = "Halting"
	// StateDying means post-shutdown cleanup is in progress.
	StateDying PowerState = "Dying"
	// StateCrashed means the machine crashed and is unusable.
	StateCrashed PowerState = "Crashed"
	// StateNA means the state is unknown.
	StateNA PowerState = "NA"
)

// VM is the proxy for one managed machine. It holds only the machine's
// identity and a property cache — never authoritative state. Two proxies
// with the same name refer to the same machine and compare equal under
// Equal; proxies obtained through Client.Domains additionally share one
// cache.
type VM struct {
	c     *Client
	name  string
	class string

	props *propertySet
}

func newVM(c *Client, name, class string) *VM {
	return &VM{
		c:     c,
		name:  name,
		class: class,
		props: newPropertySet(c, name, "admin.vm.property."),
	}
}

// VM returns a proxy for the named machine without checking that it
// exists; the first call through it will report qerr.ErrNotFound if it
// does not. Proxies built this way have their own property cache — use
// Client.Domains.Get for a shared one.
func (c *Client) VM(name string) *VM {
	return newVM(c, name, "")
}

// Name returns the machine's name.
func (v *VM) Name() string { return v.name }

func (v *VM) String() string { return v.name }

// Class returns the machine's class as known at proxy creation, or empty
// for directly constructed proxies.
func (v *VM) Class() string { return v.class }

// Equal reports whether both proxies refer to the same machine.
func (v *VM) Equal(other *VM) bool {
	return other != nil && v.name == other.name
}

// Start starts the machine.
func (v *VM) Start(ctx context.Context) error {
	_, err := v.c.call(ctx, v.name, "admin.vm.Start", "", nil)
	return err
}

// Shutdown asks the machine's OS to shut down.
func (v *VM) Shutdown(ctx context.Context) error {
	_, err := v.c.call(ctx, v.name, "admin.vm.Shutdown", "", nil)
	return err
}

// Kill forcefully stops the machine.
func (v *VM) Kill(ctx context.Context) error {
	_, err := v.c.call(ctx, v.name, "admin.vm.Kill", "", nil)
	return err
}

// Pause pauses execution without notifying the machine.
func (v *VM) Pause(ctx context.Context) error {
	_, err := v.c.call(ctx, v.name, "admin.vm.Pause", "", nil)
	return err
}

// Unpause resumes a paused machine.
func (v *VM) Unpause(ctx context.Context) error {
	_, err := v.c.call(ctx, v.name, "admin.vm.Unpause", "", nil)
	return err
}

// Remove removes the machine from the service.
func (v *VM) Remove(ctx context.Context) error {
	if _, err := v.c.call(ctx, v.name, "admin.vm.Remove", "", nil); err != nil {
		return err
	}
	v.c.Domains.dropProxy(v.name)
	return nil
}

// PowerState returns the machine's current power state. Addressing the
// listing call at the machine itself returns just its own entry.
func (v *VM) PowerState(ctx context.Context) (PowerState, error) {
	infos, err := v.c.Domains.list(ctx, v.name)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Name == v.name {
			if info.State == "" {
				return "", fmt.Errorf("%w: list entry for %q carries no state",
					wire.ErrProtocol, v.name)
			}
			return PowerState(info.State), nil
		}
	}
	return "", fmt.Errorf("%w: list response misses %q", wire.ErrProtocol, v.name)
}

// IsHalted reports whether the machine is halted.
func (v *VM) IsHalted(ctx context.Context) (bool, error) {
	state, err := v.PowerState(ctx)
	return state == StateHalted, err
}

// IsPaused reports whether the machine is paused.
func (v *VM) IsPaused(ctx context.Context) (bool, error) {
	state, err := v.PowerState(ctx)
	return state == StatePaused, err
}

// IsRunning reports whether the machine is in any non-halted state.
func (v *VM) IsRunning(ctx context.Context) (bool, error) {
	state, err := v.PowerState(ctx)
	if err != nil {
		return false, err
	}
	return state != StateHalted, nil
}

// GetProperty returns a machine property, served from cache when fresh.
func (v *VM) GetProperty(ctx context.Context, name string) (Value, error) {
	return v.props.Get(ctx, name)
}

// GetPropertyDefault returns a machine property's computed default.
func (v *VM) GetPropertyDefault(ctx context.Context, name string) (Value, error) {
	return v.props.GetDefault(ctx, name)
}

// SetProperty writes a machine property.
func (v *VM) SetProperty(ctx context.Context, name string, val Value) error {
	return v.props.Set(ctx, name, val)
}

// ResetProperty reverts a machine property to its computed default.
func (v *VM) ResetProperty(ctx context.Context, name string) error {
	return v.props.Reset(ctx, name)
}

// PropertyIsDefault reports whether the property currently holds its
// computed default.
func (v *VM) PropertyIsDefault(ctx context.Context, name string) (bool, error) {
	return v.props.IsDefault(ctx, name)
}

// Properties returns the machine's declared property descriptors, sorted
// by name.
func (v *VM) Properties(ctx context.Context) ([]PropertyDescriptor, error) {
	return v.props.Descriptors(ctx)
}

// GetString is GetProperty constrained to string-typed properties.
func (v *VM) GetString(ctx context.Context, name string) (string, error) {
	return v.props.GetString(ctx, name)
}

// GetInt is GetProperty constrained to integer-typed properties.
func (v *VM) GetInt(ctx context.Context, name string) (int64, error) {
	return v.props.GetInt(ctx, name)
}

// GetBool is GetProperty constrained to boolean-typed properties.
func (v *VM) GetBool(ctx context.Context, name string) (bool, error) {
	return v.props.GetBool(ctx, name)
}

// Volumes returns the machine's disk volumes keyed by volume name
// ("root", "private", ...).
func (v *VM) Volumes(ctx context.Context) (map[string]*Volume, error) {
	body, err := v.c.call(ctx, v.name, "admin.vm.volume.List", "", nil)
	if err != nil {
		return nil, err
	}
	volumes := make(map[string]*Volume)
	for _, name := range splitLines(string(body)) {
		volumes[name] = &Volume{c: v.c, vm: v.name, vmName: name}
	}
	return volumes, nil
}

// splitLines splits a newline-terminated payload, dropping empty lines
// and preserving order.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

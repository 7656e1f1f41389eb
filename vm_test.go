package quarry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/quarry/wire"
)

func TestVMLifecycleCalls(t *testing.T) {
	tests := []struct {
		name   string
		method string
		op     func(vm *VM, ctx context.Context) error
	}{
		{name: "start", method: "admin.vm.Start", op: (*VM).Start},
		{name: "shutdown", method: "admin.vm.Shutdown", op: (*VM).Shutdown},
		{name: "kill", method: "admin.vm.Kill", op: (*VM).Kill},
		{name: "pause", method: "admin.vm.Pause", op: (*VM).Pause},
		{name: "unpause", method: "admin.vm.Unpause", op: (*VM).Unpause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockTransport()
			m.respondOK("work", tt.method, "", "")
			c := New(m)

			require.NoError(t, tt.op(c.VM("work"), context.Background()))
			assert.Equal(t, 1, m.count("work", tt.method, ""))
		})
	}
}

func TestVMRemoveDropsProxy(t *testing.T) {
	m := newMockTransport()
	m.respondOK("dom0", "admin.vm.List", "", "work class=AppVM state=Halted\n")
	m.respondOK("work", "admin.vm.Remove", "", "")
	c := New(m)

	ctx := context.Background()
	vm, err := c.Domains.Get(ctx, "work")
	require.NoError(t, err)
	require.NoError(t, vm.Remove(ctx))

	_, tracked := c.Domains.proxy("work")
	assert.False(t, tracked)
}

func TestVMPowerState(t *testing.T) {
	m := newMockTransport()
	// The listing addressed at the machine returns only its own entry.
	m.respondOK("work", "admin.vm.List", "", "work class=AppVM state=Running\n")
	c := New(m)

	ctx := context.Background()
	vm := c.VM("work")

	state, err := vm.PowerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)

	running, err := vm.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	halted, err := vm.IsHalted(ctx)
	require.NoError(t, err)
	assert.False(t, halted)
}

func TestVMPowerStateNeverCached(t *testing.T) {
	m := newMockTransport()
	m.respondOK("work", "admin.vm.List", "", "work class=AppVM state=Halted\n")
	c := New(m)

	ctx := context.Background()
	vm := c.VM("work")
	for i := 0; i < 2; i++ {
		_, err := vm.PowerState(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.count("work", "admin.vm.List", ""))
}

func TestVMPowerStateMalformed(t *testing.T) {
	tests := []struct {
		name    string
		listing string
	}{
		{name: "missing entry", listing: "other class=AppVM state=Running\n"},
		{name: "missing state", listing: "work class=AppVM\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockTransport()
			m.respondOK("work", "admin.vm.List", "", tt.listing)
			c := New(m)

			_, err := c.VM("work").PowerState(context.Background())
			assert.True(t, errors.Is(err, wire.ErrProtocol))
		})
	}
}

func TestVMEqual(t *testing.T) {
	c := New(newMockTransport())
	assert.True(t, c.VM("work").Equal(c.VM("work")))
	assert.False(t, c.VM("work").Equal(c.VM("other")))
	assert.False(t, c.VM("work").Equal(nil))
}

func TestVMVolumes(t *testing.T) {
	m := newMockTransport()
	m.respondOK("work", "admin.vm.volume.List", "", "root\nprivate\nvolatile\n")
	c := New(m)

	volumes, err := c.VM("work").Volumes(context.Background())
	require.NoError(t, err)
	require.Len(t, volumes, 3)
	require.Contains(t, volumes, "private")
	require.Contains(t, volumes, "root")
	require.Contains(t, volumes, "volatile")
}

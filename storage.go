package quarry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jbweber/quarry/wire"
)

// Pool is the proxy for one storage pool. Configuration is fetched on
// first use and cached for the proxy's lifetime; pools change rarely and
// a stale config is recovered by creating a new proxy.
type Pool struct {
	c    *Client
	name string

	config map[string]string
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

func (p *Pool) String() string { return p.name }

// Config returns the pool configuration as key=value pairs.
func (p *Pool) Config(ctx context.Context) (map[string]string, error) {
	if p.config != nil {
		return p.config, nil
	}
	body, err := p.c.call(ctx, wire.GlobalDest, "admin.pool.Info", p.name, nil)
	if err != nil {
		return nil, err
	}
	config, err := parseKeyValueLines(string(body))
	if err != nil {
		return nil, err
	}
	p.config = config
	return config, nil
}

// Driver returns the pool's storage driver name.
func (p *Pool) Driver(ctx context.Context) (string, error) {
	config, err := p.Config(ctx)
	if err != nil {
		return "", err
	}
	driver, ok := config["driver"]
	if !ok {
		return "", fmt.Errorf("%w: pool info for %q carries no driver", wire.ErrProtocol, p.name)
	}
	return driver, nil
}

// Volumes returns the volumes managed by this pool.
func (p *Pool) Volumes(ctx context.Context) ([]*Volume, error) {
	body, err := p.c.call(ctx, wire.GlobalDest, "admin.pool.volume.List", p.name, nil)
	if err != nil {
		return nil, err
	}
	var volumes []*Volume
	for _, vid := range splitLines(string(body)) {
		volumes = append(volumes, &Volume{c: p.c, pool: p.name, vid: vid})
	}
	return volumes, nil
}

// VolumeInfo is a point-in-time snapshot of a volume's properties.
type VolumeInfo struct {
	Pool            string `yaml:"pool" json:"pool"`
	Vid             string `yaml:"vid" json:"vid"`
	Size            int64  `yaml:"size" json:"size"`
	Usage           int64  `yaml:"usage" json:"usage"`
	RW              bool   `yaml:"rw" json:"rw"`
	SnapOnStart     bool   `yaml:"snap_on_start" json:"snap_on_start"`
	SaveOnStop      bool   `yaml:"save_on_stop" json:"save_on_stop"`
	Source          string `yaml:"source" json:"source"`
	Internal        bool   `yaml:"internal" json:"internal"`
	RevisionsToKeep int    `yaml:"revisions_to_keep" json:"revisions_to_keep"`
}

// Volume is the proxy for one storage volume, identified either by
// pool+vid or by the owning machine and the volume's name within it
// ("root", "private", ...). The two identities route through different
// call families but address the same object.
type Volume struct {
	c *Client

	pool string
	vid  string

	vm     string
	vmName string
}

// VolumeByPool returns a proxy for the volume vid within pool.
func (c *Client) VolumeByPool(pool, vid string) *Volume {
	return &Volume{c: c, pool: pool, vid: vid}
}

// call routes a volume operation through the right method family for the
// volume's identity.
func (v *Volume) call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if v.vm != "" {
		return v.c.call(ctx, v.vm, "admin.vm.volume."+op, v.vmName, payload)
	}
	// Pool-addressed calls carry the vid as the first payload token.
	p := []byte(v.vid)
	if len(payload) > 0 {
		p = append(append(p, ' '), payload...)
	}
	return v.c.call(ctx, wire.GlobalDest, "admin.pool.volume."+op, v.pool, p)
}

// Info fetches the volume's current properties. Size and usage move while
// a machine runs, so Info is never cached.
func (v *Volume) Info(ctx context.Context) (VolumeInfo, error) {
	body, err := v.call(ctx, "Info", nil)
	if err != nil {
		return VolumeInfo{}, err
	}
	kv, err := parseKeyValueLines(string(body))
	if err != nil {
		return VolumeInfo{}, err
	}
	return volumeInfoFromMap(kv)
}

func volumeInfoFromMap(kv map[string]string) (VolumeInfo, error) {
	info := VolumeInfo{
		Pool:   kv["pool"],
		Vid:    kv["vid"],
		Source: kv["source"],
	}
	var err error
	for _, field := range []struct {
		key string
		dst *int64
	}{
		{"size", &info.Size},
		{"usage", &info.Usage},
	} {
		raw, ok := kv[field.key]
		if !ok {
			return VolumeInfo{}, fmt.Errorf("%w: volume info misses %q", wire.ErrProtocol, field.key)
		}
		*field.dst, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return VolumeInfo{}, fmt.Errorf("%w: invalid volume %s %q", wire.ErrProtocol, field.key, raw)
		}
	}
	for _, field := range []struct {
		key string
		dst *bool
	}{
		{"rw", &info.RW},
		{"snap_on_start", &info.SnapOnStart},
		{"save_on_stop", &info.SaveOnStop},
		{"internal", &info.Internal},
	} {
		*field.dst = kv[field.key] == "True"
	}
	if raw, ok := kv["revisions_to_keep"]; ok {
		info.RevisionsToKeep, err = strconv.Atoi(raw)
		if err != nil {
			return VolumeInfo{}, fmt.Errorf("%w: invalid revisions_to_keep %q", wire.ErrProtocol, raw)
		}
	}
	return info, nil
}

// Resize grows the volume to size bytes. Only extending is supported by
// the service.
func (v *Volume) Resize(ctx context.Context, size int64) error {
	_, err := v.call(ctx, "Resize", []byte(strconv.FormatInt(size, 10)))
	return err
}

// Revisions returns the identifiers of the volume's stored revisions.
func (v *Volume) Revisions(ctx context.Context) ([]string, error) {
	body, err := v.call(ctx, "ListSnapshots", nil)
	if err != nil {
		return nil, err
	}
	return splitLines(string(body)), nil
}

// Revert reverts the volume to a previous revision.
func (v *Volume) Revert(ctx context.Context, revision string) error {
	_, err := v.call(ctx, "Revert", []byte(revision))
	return err
}

// PoolDrivers returns the available storage pool drivers, sorted.
func (c *Client) PoolDrivers(ctx context.Context) ([]string, error) {
	drivers, err := c.poolDrivers(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PoolDriverParameters returns the configuration parameters accepted when
// creating a pool with the given driver.
func (c *Client) PoolDriverParameters(ctx context.Context, driver string) ([]string, error) {
	drivers, err := c.poolDrivers(ctx)
	if err != nil {
		return nil, err
	}
	params, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown pool driver %q", driver)
	}
	return params, nil
}

// poolDrivers fetches the driver listing: one "driver param param..." line
// per driver.
func (c *Client) poolDrivers(ctx context.Context) (map[string][]string, error) {
	body, err := c.call(ctx, wire.GlobalDest, "admin.pool.ListDrivers", "", nil)
	if err != nil {
		return nil, err
	}
	drivers := make(map[string][]string)
	for _, line := range splitLines(string(body)) {
		fields := strings.Split(line, " ")
		drivers[fields[0]] = fields[1:]
	}
	return drivers, nil
}

// AddPool creates a storage pool using the given driver. Parameters are
// rendered name-first, then sorted, so the payload is deterministic.
func (c *Client) AddPool(ctx context.Context, name, driver string, params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "name=%s\n", name)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, params[k])
	}
	_, err := c.call(ctx, wire.GlobalDest, "admin.pool.Add", driver, []byte(b.String()))
	return err
}

// RemovePool removes a storage pool.
func (c *Client) RemovePool(ctx context.Context, name string) error {
	_, err := c.call(ctx, wire.GlobalDest, "admin.pool.Remove", name, nil)
	return err
}

// parseKeyValueLines decodes a payload of newline-terminated key=value
// lines, the format of pool and volume info responses.
func parseKeyValueLines(s string) (map[string]string, error) {
	kv := make(map[string]string)
	for _, line := range splitLines(s) {
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed key=value line %q", wire.ErrProtocol, line)
		}
		kv[key] = value
	}
	return kv, nil
}

// Package quarry is a client library for the Qubes-style Admin API: it
// lets administrative tools manage isolated virtual machines by talking to
// the privileged management service over a narrow, message-oriented
// channel.
//
// The library keeps a typed object model of the remote entities: the
// Client itself (global properties), the machines in Client.Domains, and
// the labels, storage pools and volumes hanging off them. Proxies hold no
// authoritative state — every value is either fetched on demand or served
// from a per-proxy cache that the event feed invalidates as remote state
// changes.
//
// Calls are synchronous and blocking: each one opens its own transport
// session, performs exactly one exchange, and never retries. Administrative
// operations must not be silently repeated, so retry policy, if any,
// belongs to the caller.
//
// Basic usage:
//
//	c := quarry.New(transport.NewSocket("", 0))
//	vm, err := c.Domains.Get(ctx, "work")
//	if err != nil { ... }
//	mem, err := vm.GetInt(ctx, "memory")
package quarry

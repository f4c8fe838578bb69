// Package registry tracks the shared device resources whose lifetime spans
// several logical routers: VRFs, NAT pools and secondary addresses on the
// external interface. It is the only state the engine keeps between
// reconciliation calls.
//
// A Registry is created once per process with New, passed by reference to
// every device worker, and is safe for concurrent use.
package registry

import (
	"context"
	"fmt"
	"strings"
)

// Registry owns the three reference-counted resource families.
type Registry struct {
	// VRFs: key device|vrf, holder router id.
	VRFs *RefSet
	// NATPools: key device|pool, holder router id.
	NATPools *RefSet
	// SecondaryIPs: key device|interface|cidr, holder "fip:<addr>" or
	// "pool:<name>/<router>".
	SecondaryIPs *RefSet

	store Store
}

// New creates a registry backed by store. A nil store keeps membership in
// memory only.
func New(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		VRFs:         newRefSet(KindVRF, store),
		NATPools:     newRefSet(KindNATPool, store),
		SecondaryIPs: newRefSet(KindSecondaryIP, store),
		store:        store,
	}
}

// Restore rebuilds membership from the store. No device commands are issued:
// the objects are assumed to exist already.
func (r *Registry) Restore(ctx context.Context) error {
	data, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	for kind, entries := range data {
		set := r.Set(kind)
		if set == nil {
			continue
		}
		for key, holders := range entries {
			set.restore(key, holders)
		}
	}
	return nil
}

// Set returns the RefSet for kind, or nil for an unknown kind.
func (r *Registry) Set(kind Kind) *RefSet {
	switch kind {
	case KindVRF:
		return r.VRFs
	case KindNATPool:
		return r.NATPools
	case KindSecondaryIP:
		return r.SecondaryIPs
	}
	return nil
}

// Entry is one key with its holders, as listed by Dump.
type Entry struct {
	Kind    Kind     `json:"kind" yaml:"kind"`
	Key     string   `json:"key" yaml:"key"`
	Holders []string `json:"holders" yaml:"holders"`
}

// Dump lists every held key across all kinds.
func (r *Registry) Dump() []Entry {
	var out []Entry
	for _, s := range []*RefSet{r.VRFs, r.NATPools, r.SecondaryIPs} {
		for _, k := range s.Keys() {
			out = append(out, Entry{Kind: s.Kind(), Key: k, Holders: s.Holders(k)})
		}
	}
	return out
}

// Close releases the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}

// ============================================================================
// Key and holder helpers
// ============================================================================

// VRFKey returns the registry key of a VRF on a device.
func VRFKey(device, vrf string) string {
	return device + "|" + vrf
}

// NATPoolKey returns the registry key of a NAT pool on a device.
func NATPoolKey(device, pool string) string {
	return device + "|" + pool
}

// SecondaryIPKey returns the registry key of a secondary address covering
// cidr on a device interface.
func SecondaryIPKey(device, intf, cidr string) string {
	return device + "|" + intf + "|" + cidr
}

// FIPHolder names a floating IP as a secondary-address holder.
func FIPHolder(addr string) string {
	return "fip:" + addr
}

// PoolHolder names a router's use of a NAT pool as a secondary-address
// holder. Each router holds the address on its own gateway interface.
func PoolHolder(name, router string) string {
	return "pool:" + name + "/" + router
}

// SplitKey splits a key into its device and remainder ("asr-1|tenant-42" ->
// "asr-1", "tenant-42").
func SplitKey(key string) (string, string) {
	device, rest, _ := strings.Cut(key, "|")
	return device, rest
}

// ForDevice filters keys to those on the given device.
func ForDevice(keys []string, device string) []string {
	var out []string
	for _, k := range keys {
		if d, _ := SplitKey(k); d == device {
			out = append(out, k)
		}
	}
	return out
}

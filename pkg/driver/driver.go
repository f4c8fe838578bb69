// Package driver translates router lifecycle events into device commands.
//
// Each device family is one concrete implementation of Driver composed from
// shared helpers; there is no base-class chain. A driver instance is bound
// to a single device session and is used by the one worker that owns it.
package driver

import (
	"context"
	"fmt"

	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/registry"
	"github.com/newtron-network/routersync/pkg/util"
)

// Driver configures one device. Every operation returns the ChangeSet it
// pushed to the session, even when it also returns an error: commands sent
// before the failure are included.
type Driver interface {
	Name() string
	Device() string

	InternalNetworkAdded(ctx context.Context, r *model.LogicalRouter, p *model.Port) (*ChangeSet, error)
	InternalNetworkRemoved(ctx context.Context, r *model.LogicalRouter, p *model.Port) (*ChangeSet, error)
	ExternalGatewayAdded(ctx context.Context, r *model.LogicalRouter, gw *model.Port) (*ChangeSet, error)
	ExternalGatewayRemoved(ctx context.Context, r *model.LogicalRouter, gw *model.Port) (*ChangeSet, error)
	FloatingIPAdded(ctx context.Context, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) (*ChangeSet, error)
	FloatingIPRemoved(ctx context.Context, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) (*ChangeSet, error)

	// ResolveVRF returns the router's VRF name on this device.
	ResolveVRF(r *model.LogicalRouter) (string, error)
	CreateVRF(ctx context.Context, vrf string) (*ChangeSet, error)
	RemoveVRF(ctx context.Context, vrf string) (*ChangeSet, error)

	// BeginResync installs the configuration observed at the start of a full
	// resync and returns its generation. Until EndResync is called with that
	// generation, create-style operations skip commands already present.
	BeginResync(obs *device.Observed) uint64
	// EndResync discards the observation if gen is still current.
	EndResync(gen uint64)
}

// Options configures a driver instance.
type Options struct {
	Device   string
	Session  device.Session
	Registry *registry.Registry
	VRFs     VRFResolver
	Layout   Layout
	// Region, when set, tags internal sub-interfaces with the region id.
	Region string
}

// New returns the driver for a device family.
func New(family string, opts Options) (Driver, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("%w: driver for %s needs a session", util.ErrInvalidConfig, opts.Device)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: driver for %s needs a registry", util.ErrInvalidConfig, opts.Device)
	}
	if opts.VRFs == nil {
		opts.VRFs = TenantVRF{}
	}
	if opts.Layout == "" {
		opts.Layout = LayoutExposed
	}
	if opts.Device == "" {
		opts.Device = opts.Session.Device()
	}

	switch family {
	case "", FamilyASR1k:
		return newASR1k(opts), nil
	}
	return nil, fmt.Errorf("%w: unknown device family %q", util.ErrInvalidConfig, family)
}

// Families lists the supported device families.
func Families() []string {
	return []string{FamilyASR1k}
}

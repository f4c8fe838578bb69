package driver

import (
	"fmt"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/util"
)

// DefaultVRF is the device's global routing context. It always exists and is
// never created or removed.
const DefaultVRF = "default"

// VRFResolver maps a router to the name of its VRF on the device.
type VRFResolver interface {
	ResolveVRF(r *model.LogicalRouter) (string, error)
	Name() string
}

// TenantVRF names the VRF after the owning tenant.
type TenantVRF struct{}

func (TenantVRF) Name() string { return "tenant" }

func (TenantVRF) ResolveVRF(r *model.LogicalRouter) (string, error) {
	if r.TenantID == "" {
		return "", util.NewMalformedInputError("router "+r.ID, "tenant_id", "required to name the VRF")
	}
	return r.TenantID, nil
}

// TenantRegionVRF names the VRF "<tenant>-<region>" so several regions can
// share one device.
type TenantRegionVRF struct {
	Region string
}

func (TenantRegionVRF) Name() string { return "tenant-region" }

func (s TenantRegionVRF) ResolveVRF(r *model.LogicalRouter) (string, error) {
	if r.TenantID == "" {
		return "", util.NewMalformedInputError("router "+r.ID, "tenant_id", "required to name the VRF")
	}
	return fmt.Sprintf("%s-%s", r.TenantID, s.Region), nil
}

// L3PolicyVRF names the VRF after the router's L3 policy.
type L3PolicyVRF struct{}

func (L3PolicyVRF) Name() string { return "l3-policy" }

func (L3PolicyVRF) ResolveVRF(r *model.LogicalRouter) (string, error) {
	if r.L3PolicyID == "" {
		return "", util.NewMalformedInputError("router "+r.ID, "l3_policy_id", "required by the l3-policy VRF strategy")
	}
	return r.L3PolicyID, nil
}

// NewVRFResolver returns the resolver for a configured strategy name.
func NewVRFResolver(strategy, region string) (VRFResolver, error) {
	switch strategy {
	case "", "tenant":
		return TenantVRF{}, nil
	case "tenant-region":
		if region == "" {
			return nil, fmt.Errorf("%w: vrf strategy tenant-region needs a region id", util.ErrInvalidConfig)
		}
		return TenantRegionVRF{Region: region}, nil
	case "l3-policy":
		return L3PolicyVRF{}, nil
	}
	return nil, fmt.Errorf("%w: unknown vrf strategy %q", util.ErrInvalidConfig, strategy)
}

// Layout selects which hosting-info fields carry an internal port's
// sub-interface address and its tenant-route next hop. It is fixed per
// deployment.
type Layout string

const (
	// LayoutExposed: address and mask from cidr_exposed, next hop from
	// gateway_ip.
	LayoutExposed Layout = "exposed"
	// LayoutNextHop: address from gateway_ip, mask from cidr_exposed, next
	// hop from next_hop.
	LayoutNextHop Layout = "next-hop"
)

// ParseLayout validates a configured layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case "":
		return LayoutExposed, nil
	case LayoutExposed, LayoutNextHop:
		return Layout(s), nil
	}
	return "", fmt.Errorf("%w: unknown hosting info layout %q", util.ErrInvalidConfig, s)
}

// InterfaceAddress returns the sub-interface address and dotted mask of an
// internal port.
func (l Layout) InterfaceAddress(p *model.Port) (string, string, error) {
	hi := p.HostingInfo
	if hi.CIDRExposed == "" {
		return "", "", util.NewMalformedInputError("port "+p.ID, "cidr_exposed", "")
	}
	mask, err := util.Netmask(hi.CIDRExposed)
	if err != nil {
		return "", "", util.NewMalformedInputError("port "+p.ID, "cidr_exposed", err.Error())
	}

	if l == LayoutNextHop {
		if hi.GatewayIP == "" {
			return "", "", util.NewMalformedInputError("port "+p.ID, "gateway_ip", "")
		}
		return hi.GatewayIP, mask, nil
	}
	return util.SplitCIDR(hi.CIDRExposed), mask, nil
}

// NextHop returns the tenant-route next hop of an internal port.
func (l Layout) NextHop(p *model.Port) (string, error) {
	hi := p.HostingInfo
	if l == LayoutNextHop {
		if hi.NextHop == "" {
			return "", util.NewMalformedInputError("port "+p.ID, "next_hop", "")
		}
		return hi.NextHop, nil
	}
	if hi.GatewayIP == "" {
		return "", util.NewMalformedInputError("port "+p.ID, "gateway_ip", "")
	}
	return hi.GatewayIP, nil
}

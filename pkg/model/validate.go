package model

import (
	"fmt"

	"github.com/newtron-network/routersync/pkg/util"
)

// Validate performs structural checks on the router snapshot. Missing keys a
// particular device family needs are the driver's concern, not this one's.
func (r *LogicalRouter) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(r.ID != "", "router id is required")
	v.Add(r.TenantID != "" || r.IsGlobal(), fmt.Sprintf("router %s: tenant_id is required", r.ID))

	switch r.Role {
	case "", RoleStandalone, RoleHARedundancy, RoleGlobal:
	default:
		v.AddErrorf("router %s: unknown role %q", r.ID, r.Role)
	}

	if r.GatewayPort != nil {
		r.GatewayPort.validate(v, "gateway port")
	}

	seen := make(map[string]bool)
	for i, p := range r.Interfaces {
		if p == nil {
			v.AddErrorf("router %s: interface %d is empty", r.ID, i)
			continue
		}
		if seen[p.ID] {
			v.AddErrorf("router %s: duplicate interface %s", r.ID, p.ID)
		}
		seen[p.ID] = true
		p.validate(v, "interface")
	}

	for _, fip := range r.FloatingIPs {
		v.Add(util.IsValidIPv4(fip.FloatingIPAddress),
			fmt.Sprintf("floating ip %q: invalid floating address", fip.FloatingIPAddress))
		v.Add(util.IsValidIPv4(fip.FixedIPAddress),
			fmt.Sprintf("floating ip %q: invalid fixed address %q", fip.FloatingIPAddress, fip.FixedIPAddress))
		if fip.SubnetCIDR != "" && !util.IsValidCIDR(fip.SubnetCIDR) {
			v.AddErrorf("floating ip %q: invalid subnet %q", fip.FloatingIPAddress, fip.SubnetCIDR)
		}
	}

	for _, rr := range r.HA.RedundancyRouters {
		v.Add(rr.ID != "", fmt.Sprintf("router %s: redundancy router without id", r.ID))
	}

	return v.Build()
}

// Validate performs structural checks on a single port.
func (p *Port) Validate() error {
	v := &util.ValidationBuilder{}
	p.validate(v, "port")
	return v.Build()
}

func (p *Port) validate(v *util.ValidationBuilder, what string) {
	v.Add(p.ID != "", what+" id is required")

	if p.IPCIDR != "" && !util.IsValidCIDR(p.IPCIDR) {
		v.AddErrorf("%s %s: invalid ip_cidr %q", what, p.ID, p.IPCIDR)
	}
	for _, s := range append(append([]Subnet(nil), p.Subnets...), p.ExtraSubnets...) {
		if !util.IsValidCIDR(s.CIDR) {
			v.AddErrorf("%s %s: invalid subnet cidr %q", what, p.ID, s.CIDR)
		}
	}

	hi := p.HostingInfo
	if hi.SegmentationID != 0 && (hi.SegmentationID < 1 || hi.SegmentationID > 4094) {
		v.AddErrorf("%s %s: segmentation_id %d out of range (1-4094)", what, p.ID, hi.SegmentationID)
	}
	if hi.CIDRExposed != "" && !util.IsValidCIDR(hi.CIDRExposed) {
		v.AddErrorf("%s %s: invalid cidr_exposed %q", what, p.ID, hi.CIDRExposed)
	}
	for _, sn := range hi.SNATSubnets {
		if !util.IsValidCIDR(sn.CIDR) || !util.IsValidIPv4(sn.IP) {
			v.AddErrorf("%s %s: invalid snat subnet %s/%s", what, p.ID, sn.CIDR, sn.IP)
		}
	}
}

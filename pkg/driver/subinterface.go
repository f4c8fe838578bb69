package driver

import (
	"strconv"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// addInternal configures a tenant-facing sub-interface and its reachability:
// either the port's declarative directives or a static tenant route.
func (d *asr1k) addInternal(e *emitter, r *model.LogicalRouter, p *model.Port) error {
	log := util.WithRouter(d.opts.Device, r.ID)
	if p.IsIPv6() {
		log.Debugf("port %s: IPv6 internal network, nothing to configure", p.ID)
		return nil
	}
	if r.HA.Enabled && p.HAInfo == nil {
		return util.NewNotReadyError(r.ID, p.ID, "HA is enabled but the port has no HA binding yet")
	}

	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}
	ip, mask, err := d.opts.Layout.InterfaceAddress(p)
	if err != nil {
		return err
	}
	// Route, directives and HSRP are checked line by line in e.add.
	if e.hasSubInterface(p) {
		log.Debugf("sub-interface %s already present", p.SubInterface())
	} else if err := d.createSubInterface(e, p, vrf, ip, mask); err != nil {
		return err
	}
	if r.HA.Enabled {
		if err := d.addHA(e, r, p, vrf, ip, false); err != nil {
			return err
		}
	}

	if p.HasInterfaceConfig() {
		for _, c := range p.HostingInfo.InterfaceConfig {
			if err := e.add(snippets.SetInterfaceConfig, p.SubInterface(), c); err != nil {
				return err
			}
		}
		return nil
	}
	args, err := d.tenantRoute(vrf, p)
	if err != nil {
		return err
	}
	return e.add(snippets.SetTenantRoute, args...)
}

// removeInternal undoes addInternal's reachability configuration. The
// sub-interface itself stays; it is reused if the port comes back.
func (d *asr1k) removeInternal(e *emitter, r *model.LogicalRouter, p *model.Port) error {
	if p.IsIPv6() {
		return nil
	}
	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}
	if r.HA.Enabled && p.HAInfo != nil {
		ip, _, err := d.opts.Layout.InterfaceAddress(p)
		if err != nil {
			return err
		}
		if err := d.removeHA(e, r, p, vrf, ip, false); err != nil {
			return err
		}
	}

	if p.HasInterfaceConfig() {
		for _, c := range p.HostingInfo.InterfaceConfig {
			if err := e.del(snippets.RemoveInterfaceConfig, p.SubInterface(), c); err != nil {
				return err
			}
		}
		return nil
	}
	args, err := d.tenantRoute(vrf, p)
	if err != nil {
		return err
	}
	return e.del(snippets.RemoveTenantRoute, args...)
}

func (d *asr1k) createSubInterface(e *emitter, p *model.Port, vrf, ip, mask string) error {
	sub := p.SubInterface()
	vlan := strconv.Itoa(p.HostingInfo.SegmentationID)
	switch {
	case vrf == DefaultVRF:
		return e.add(snippets.CreateSubInterfaceGlobal, sub, vlan, ip, mask)
	case d.opts.Region != "":
		return e.add(snippets.CreateSubInterfaceRegion, sub, d.opts.Region, vlan, vrf, ip, mask)
	default:
		return e.add(snippets.CreateSubInterface, sub, vlan, vrf, ip, mask)
	}
}

// gatewayAddress returns the external sub-interface address and mask.
func gatewayAddress(gw *model.Port) (string, string, error) {
	if len(gw.FixedIPs) == 0 || gw.FixedIPs[0] == "" {
		return "", "", util.NewMalformedInputError("gateway port "+gw.ID, "fixed_ips", "no fixed IP")
	}
	cidr := gw.IPCIDR
	if cidr == "" && len(gw.Subnets) > 0 {
		cidr = gw.Subnets[0].CIDR
	}
	if cidr == "" {
		return "", "", util.NewMalformedInputError("gateway port "+gw.ID, "ip_cidr", "")
	}
	mask, err := util.Netmask(cidr)
	if err != nil {
		return "", "", util.NewMalformedInputError("gateway port "+gw.ID, "ip_cidr", err.Error())
	}
	return gw.FixedIPs[0], mask, nil
}

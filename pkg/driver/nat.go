package driver

import (
	"context"
	"fmt"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/registry"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// natPoolName names the i-th source-NAT pool of a VRF.
func natPoolName(vrf string, i int) string {
	if i == 0 {
		return vrf + "_nat_pool"
	}
	return fmt.Sprintf("%s_nat_pool_%d", vrf, i)
}

type natPool struct {
	name string
	ip   string
	cidr string
	mask string
}

func snatPools(vrf string, gw *model.Port) ([]natPool, error) {
	var pools []natPool
	for i, sn := range gw.HostingInfo.SNATSubnets {
		cidr, err := util.CanonicalCIDR(sn.CIDR)
		if err != nil {
			return nil, util.NewMalformedInputError("gateway port "+gw.ID, "snat_subnets", err.Error())
		}
		mask, err := util.Netmask(cidr)
		if err != nil {
			return nil, util.NewMalformedInputError("gateway port "+gw.ID, "snat_subnets", err.Error())
		}
		if sn.IP == "" {
			return nil, util.NewMalformedInputError("gateway port "+gw.ID, "snat_subnets", "subnet "+sn.CIDR+" has no ip")
		}
		pools = append(pools, natPool{name: natPoolName(vrf, i), ip: sn.IP, cidr: cidr, mask: mask})
	}
	return pools, nil
}

// setNATPools defines one pool per SNAT subnet of gw, shared by every router
// of the VRF, together with the secondary address that makes the pool
// reachable on the external interface.
func (d *asr1k) setNATPools(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port, vrf string) error {
	pools, err := snatPools(vrf, gw)
	if err != nil {
		return err
	}
	for _, p := range pools {
		p := p
		_, err := d.opts.Registry.NATPools.Acquire(ctx, registry.NATPoolKey(d.opts.Device, p.name), r.ID,
			func(ctx context.Context) error {
				if err := e.add(snippets.SetNATPool, p.name, p.ip, p.ip, p.mask); err != nil {
					return err
				}
				return e.flush(ctx)
			})
		if err != nil {
			return err
		}
		if err := d.acquireSecondary(ctx, e, gw, p.cidr, registry.PoolHolder(p.name, r.ID)); err != nil {
			return err
		}
	}
	return nil
}

// clearNATPools drops r's claim on each pool and on the pool's secondary
// address on r's gateway interface. Each goes away with its last holder.
func (d *asr1k) clearNATPools(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port, vrf string) error {
	pools, err := snatPools(vrf, gw)
	if err != nil {
		return err
	}
	for _, p := range pools {
		p := p
		_, err := d.opts.Registry.NATPools.Release(ctx, registry.NATPoolKey(d.opts.Device, p.name), r.ID,
			func(ctx context.Context) error {
				if err := e.del(snippets.RemoveNATPool, p.name, p.ip, p.ip, p.mask); err != nil {
					return err
				}
				return e.flush(ctx)
			})
		if err != nil {
			return err
		}
		if err := d.releaseSecondary(ctx, e, gw, p.cidr, registry.PoolHolder(p.name, r.ID)); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Floating IPs
// ============================================================================

func (d *asr1k) staticNAT(vrf string, gw *model.Port, fip model.FloatingIP, remove bool) (snippets.Template, []string) {
	if gw.HAInfo != nil {
		args := []string{fip.FixedIPAddress, fip.FloatingIPAddress, vrf,
			fmt.Sprint(gw.HAInfo.Group), fmt.Sprint(gw.HostingInfo.SegmentationID)}
		if remove {
			return snippets.RemoveStaticNATHA, args
		}
		return snippets.SetStaticNATHA, args
	}
	args := []string{fip.FixedIPAddress, fip.FloatingIPAddress, vrf}
	if remove {
		return snippets.RemoveStaticNAT, args
	}
	return snippets.SetStaticNAT, args
}

func (d *asr1k) addFloatingIP(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) error {
	if gw == nil {
		return util.NewNotReadyError(r.ID, "", "floating IP "+fip.FloatingIPAddress+" needs a gateway port")
	}
	if !model.Authoritative(r) {
		util.WithRouter(d.opts.Device, r.ID).Debugf("not the HA leader, leaving %s to the peer", fip.FloatingIPAddress)
		return nil
	}
	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}
	cidr, err := fipSubnet(gw, fip)
	if err != nil {
		return err
	}

	tmpl, args := d.staticNAT(vrf, gw, fip, false)
	if err := e.add(tmpl, args...); err != nil {
		return err
	}
	if cidr == "" {
		util.WithRouter(d.opts.Device, r.ID).Debugf("floating IP %s: no owning subnet on %s", fip.FloatingIPAddress, gw.ID)
		return nil
	}
	return d.acquireSecondary(ctx, e, gw, cidr, registry.FIPHolder(fip.FloatingIPAddress))
}

func (d *asr1k) removeFloatingIP(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) error {
	if gw == nil {
		return util.NewNotReadyError(r.ID, "", "floating IP "+fip.FloatingIPAddress+" needs a gateway port")
	}
	if !model.Authoritative(r) {
		return nil
	}
	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}
	cidr, err := fipSubnet(gw, fip)
	if err != nil {
		return err
	}

	tmpl, args := d.staticNAT(vrf, gw, fip, true)
	if err := e.del(tmpl, args...); err != nil {
		return err
	}
	if cidr == "" {
		return nil
	}
	return d.releaseSecondary(ctx, e, gw, cidr, registry.FIPHolder(fip.FloatingIPAddress))
}

// fipSubnet returns the canonical CIDR of the subnet owning a floating
// address: the explicit one if set, else the first IPv4 subnet of the
// gateway port (extra subnets first) that contains it. Empty means none.
func fipSubnet(gw *model.Port, fip model.FloatingIP) (string, error) {
	if fip.SubnetCIDR != "" {
		cidr, err := util.CanonicalCIDR(fip.SubnetCIDR)
		if err != nil {
			return "", util.NewMalformedInputError("floating ip "+fip.FloatingIPAddress, "subnet_cidr", err.Error())
		}
		return cidr, nil
	}
	candidates := append(append([]model.Subnet(nil), gw.ExtraSubnets...), gw.Subnets...)
	for _, s := range candidates {
		if util.IsIPv6(s.CIDR) || !util.CIDRContains(s.CIDR, fip.FloatingIPAddress) {
			continue
		}
		return util.CanonicalCIDR(s.CIDR)
	}
	return "", nil
}

// ============================================================================
// Secondary addresses
// ============================================================================

// acquireSecondary claims the secondary address covering cidr on the gateway
// sub-interface. The address is the subnet's highest host.
func (d *asr1k) acquireSecondary(ctx context.Context, e *emitter, gw *model.Port, cidr, holder string) error {
	addr, mask, err := secondaryAddr(cidr)
	if err != nil {
		return err
	}
	sub := gw.SubInterface()
	_, err = d.opts.Registry.SecondaryIPs.Acquire(ctx, registry.SecondaryIPKey(d.opts.Device, sub, cidr), holder,
		func(ctx context.Context) error {
			if err := e.add(snippets.SetSecondaryIP, sub, addr, mask); err != nil {
				return err
			}
			return e.flush(ctx)
		})
	return err
}

func (d *asr1k) releaseSecondary(ctx context.Context, e *emitter, gw *model.Port, cidr, holder string) error {
	addr, mask, err := secondaryAddr(cidr)
	if err != nil {
		return err
	}
	sub := gw.SubInterface()
	_, err = d.opts.Registry.SecondaryIPs.Release(ctx, registry.SecondaryIPKey(d.opts.Device, sub, cidr), holder,
		func(ctx context.Context) error {
			if err := e.del(snippets.RemoveSecondaryIP, sub, addr, mask); err != nil {
				return err
			}
			return e.flush(ctx)
		})
	return err
}

func secondaryAddr(cidr string) (string, string, error) {
	addr, err := util.TopHostAddr(cidr)
	if err != nil {
		return "", "", util.NewMalformedInputError("subnet "+cidr, "cidr", err.Error())
	}
	mask, err := util.Netmask(cidr)
	if err != nil {
		return "", "", util.NewMalformedInputError("subnet "+cidr, "cidr", err.Error())
	}
	return addr, mask, nil
}

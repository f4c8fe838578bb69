package driver

import (
	"context"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// attachGateway configures the external sub-interface of r: address, HSRP,
// source-NAT pools and default routes. For the global router the interface
// lives in the default context and carries no NAT or routes.
func (d *asr1k) attachGateway(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port) error {
	if gw == nil {
		return util.NewMalformedInputError("router "+r.ID, "gw_port", "no gateway port")
	}
	if r.HA.Enabled && gw.HAInfo == nil {
		return util.NewNotReadyError(r.ID, gw.ID, "HA is enabled but the gateway port has no HA binding yet")
	}
	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}

	ip, mask, err := gatewayAddress(gw)
	if err != nil {
		return err
	}
	if e.hasSubInterface(gw) {
		util.WithRouter(d.opts.Device, r.ID).Debugf("sub-interface %s already present", gw.SubInterface())
	} else if err := d.createSubInterface(e, gw, vrf, ip, mask); err != nil {
		return err
	}
	if r.HA.Enabled {
		if err := d.addHA(e, r, gw, vrf, ip, true); err != nil {
			return err
		}
	}

	if vrf == DefaultVRF {
		return nil
	}
	if model.Authoritative(r) {
		if err := d.setNATPools(ctx, e, r, gw, vrf); err != nil {
			return err
		}
	}
	for _, rc := range gatewayRoutes(vrf, gw, false) {
		if err := e.add(rc.tmpl, rc.args...); err != nil {
			return err
		}
	}
	return nil
}

// detachGateway reverses attachGateway and removes the sub-interface.
func (d *asr1k) detachGateway(ctx context.Context, e *emitter, r *model.LogicalRouter, gw *model.Port) error {
	if gw == nil {
		return util.NewMalformedInputError("router "+r.ID, "gw_port", "no gateway port")
	}
	vrf, err := d.ResolveVRF(r)
	if err != nil {
		return err
	}

	if vrf != DefaultVRF {
		for _, rc := range gatewayRoutes(vrf, gw, true) {
			if err := e.del(rc.tmpl, rc.args...); err != nil {
				return err
			}
		}
		if model.Authoritative(r) {
			if err := d.clearNATPools(ctx, e, r, gw, vrf); err != nil {
				return err
			}
		}
	}
	return e.del(snippets.RemoveSubInterface, gw.SubInterface())
}

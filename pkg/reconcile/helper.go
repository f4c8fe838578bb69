// Package reconcile drives a device driver from router snapshots. A Helper
// remembers what it has configured for each router on one device and turns
// a new snapshot into the add and remove calls that close the gap. A Manager
// runs one Helper per device on its own worker.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/registry"
	"github.com/newtron-network/routersync/pkg/util"
)

// RouterInfo is what the helper has configured for one router.
type RouterInfo struct {
	Router        *model.LogicalRouter
	VRF           string
	GatewayPort   *model.Port
	InternalPorts []*model.Port
	FloatingIPs   map[string]model.FloatingIP // by floating address
}

func (ri *RouterInfo) port(id string) (int, *model.Port) {
	for i, p := range ri.InternalPorts {
		if p.ID == id {
			return i, p
		}
	}
	return -1, nil
}

func (ri *RouterInfo) dropPort(id string) {
	if i, _ := ri.port(id); i >= 0 {
		ri.InternalPorts = append(ri.InternalPorts[:i], ri.InternalPorts[i+1:]...)
	}
}

// ready reports whether internal ports and floating IPs can be configured.
// The global router's ports are gateways themselves.
func (ri *RouterInfo) ready() bool {
	return ri.GatewayPort != nil || ri.Router.IsGlobal()
}

// ChangeFunc observes every driver call that pushed commands or failed.
type ChangeFunc func(cs *driver.ChangeSet, err error)

// HelperOptions configures a Helper.
type HelperOptions struct {
	// Transit fills internal-port hosting info the plugging layer left out.
	// Nil disables it.
	Transit model.TransitTable
	// OnChange, if set, is called for each applied change set.
	OnChange ChangeFunc
}

// Helper reconciles the routers of one device. It is owned by a single
// worker and is not safe for concurrent use.
type Helper struct {
	drv      driver.Driver
	reg      *registry.Registry
	transit  model.TransitTable
	onChange ChangeFunc

	routers map[string]*RouterInfo
}

// NewHelper creates a helper over drv. The registry must be the one drv was
// built with.
func NewHelper(drv driver.Driver, reg *registry.Registry, opts HelperOptions) *Helper {
	return &Helper{
		drv:      drv,
		reg:      reg,
		transit:  opts.Transit,
		onChange: opts.OnChange,
		routers:  make(map[string]*RouterInfo),
	}
}

// Device returns the device the helper reconciles.
func (h *Helper) Device() string { return h.drv.Device() }

// Router returns the tracked state of a router, or nil.
func (h *Helper) Router(id string) *RouterInfo { return h.routers[id] }

// Tracked returns the ids of all tracked routers.
func (h *Helper) Tracked() []string {
	ids := make([]string, 0, len(h.routers))
	for id := range h.routers {
		ids = append(ids, id)
	}
	return ids
}

func (h *Helper) record(cs *driver.ChangeSet, err error) {
	if h.onChange == nil || (cs.IsEmpty() && err == nil) {
		return
	}
	h.onChange(cs, err)
}

func (h *Helper) track(r *model.LogicalRouter) *RouterInfo {
	ri := h.routers[r.ID]
	if ri == nil {
		ri = &RouterInfo{FloatingIPs: make(map[string]model.FloatingIP)}
		h.routers[r.ID] = ri
	}
	ri.Router = r
	return ri
}

// withTransit returns p with missing transit attributes filled in.
func (h *Helper) withTransit(r *model.LogicalRouter, p *model.Port) *model.Port {
	if h.transit == nil || r.IsGlobal() {
		return p
	}
	return p.WithTransitDefaults(h.transit.Lookup(r.ExternalNetwork))
}

// ============================================================================
// VRF membership
// ============================================================================

func (h *Helper) acquireVRF(ctx context.Context, ri *RouterInfo) error {
	vrf, err := h.drv.ResolveVRF(ri.Router)
	if err != nil {
		return err
	}
	ri.VRF = vrf
	if vrf == driver.DefaultVRF {
		return nil
	}
	_, err = h.reg.VRFs.Acquire(ctx, registry.VRFKey(h.Device(), vrf), ri.Router.ID, func(ctx context.Context) error {
		cs, err := h.drv.CreateVRF(ctx, vrf)
		h.record(cs, err)
		return err
	})
	return err
}

func (h *Helper) releaseVRF(ctx context.Context, ri *RouterInfo) error {
	if ri.VRF == "" || ri.VRF == driver.DefaultVRF {
		return nil
	}
	vrf := ri.VRF
	_, err := h.reg.VRFs.Release(ctx, registry.VRFKey(h.Device(), vrf), ri.Router.ID, func(ctx context.Context) error {
		cs, err := h.drv.RemoveVRF(ctx, vrf)
		h.record(cs, err)
		return err
	})
	if err == nil {
		ri.VRF = ""
	}
	return err
}

// ============================================================================
// Event operations
// ============================================================================

// ExternalGatewaySet attaches r.GatewayPort. The router's VRF is claimed
// first, then every admin-up internal port and floating IP not yet
// configured is added. A different gateway already attached is cleared.
func (h *Helper) ExternalGatewaySet(ctx context.Context, r *model.LogicalRouter) error {
	return h.gatewaySet(ctx, r, false)
}

func (h *Helper) gatewaySet(ctx context.Context, r *model.LogicalRouter, reapply bool) error {
	if r.GatewayPort == nil {
		return util.NewMalformedInputError("router "+r.ID, "gw_port", "gateway set without a gateway port")
	}
	if old := h.routers[r.ID]; old != nil && old.GatewayPort != nil && old.GatewayPort.ID != r.GatewayPort.ID {
		if err := h.ExternalGatewayCleared(ctx, r.ID); err != nil {
			return err
		}
	}
	ri := h.track(r)
	if ri.GatewayPort != nil && !reapply {
		return nil
	}

	if err := h.acquireVRF(ctx, ri); err != nil {
		return fmt.Errorf("router %s: %w", r.ID, err)
	}
	cs, err := h.drv.ExternalGatewayAdded(ctx, r, r.GatewayPort)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s gateway %s: %w", r.ID, r.GatewayPort.ID, err)
	}
	ri.GatewayPort = r.GatewayPort

	return errors.Join(h.addPorts(ctx, ri, reapply), h.addFloatingIPs(ctx, ri, reapply))
}

// ExternalGatewayCleared detaches the router's gateway. Internal ports go
// first, then floating IPs, then the gateway itself; the VRF claim is
// dropped last. Anything whose removal failed stays tracked.
func (h *Helper) ExternalGatewayCleared(ctx context.Context, routerID string) error {
	ri := h.routers[routerID]
	if ri == nil || ri.GatewayPort == nil {
		return nil
	}
	r := ri.Router

	var errs []error
	for _, p := range append([]*model.Port(nil), ri.InternalPorts...) {
		if err := h.removePort(ctx, ri, p); err != nil {
			errs = append(errs, err)
		}
	}
	for addr, fip := range ri.FloatingIPs {
		cs, err := h.drv.FloatingIPRemoved(ctx, r, ri.GatewayPort, fip)
		h.record(cs, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("router %s floating ip %s: %w", r.ID, addr, err))
			continue
		}
		delete(ri.FloatingIPs, addr)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	cs, err := h.drv.ExternalGatewayRemoved(ctx, r, ri.GatewayPort)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s gateway %s: %w", r.ID, ri.GatewayPort.ID, err)
	}
	ri.GatewayPort = nil
	return h.releaseVRF(ctx, ri)
}

// InternalNetworkAdded configures an internal port. Without an attached
// gateway it returns a not-ready error; the port is picked up when the
// gateway is set.
func (h *Helper) InternalNetworkAdded(ctx context.Context, r *model.LogicalRouter, p *model.Port) error {
	ri := h.track(r)
	if !ri.ready() {
		return util.NewNotReadyError(r.ID, p.ID, "no external gateway attached")
	}
	if _, tracked := ri.port(p.ID); tracked != nil {
		return nil
	}
	return h.addPort(ctx, ri, p)
}

// InternalNetworkRemoved unconfigures an internal port if a gateway context
// exists. The port is dropped from tracking either way.
func (h *Helper) InternalNetworkRemoved(ctx context.Context, r *model.LogicalRouter, p *model.Port) error {
	ri := h.routers[r.ID]
	if ri == nil {
		return nil
	}
	if _, tracked := ri.port(p.ID); tracked != nil {
		p = tracked
	} else {
		p = h.withTransit(r, p)
	}
	defer ri.dropPort(p.ID)
	if !ri.ready() {
		return nil
	}
	cs, err := h.drv.InternalNetworkRemoved(ctx, ri.Router, p)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s port %s: %w", r.ID, p.ID, err)
	}
	return nil
}

// FloatingIPAdded installs a floating IP. Without a gateway the change is
// deferred to gateway set.
func (h *Helper) FloatingIPAdded(ctx context.Context, r *model.LogicalRouter, fip model.FloatingIP) error {
	ri := h.track(r)
	if ri.GatewayPort == nil {
		util.WithRouter(h.Device(), r.ID).Debugf("no gateway, deferring floating IP %s", fip.FloatingIPAddress)
		return nil
	}
	if _, ok := ri.FloatingIPs[fip.FloatingIPAddress]; ok {
		return nil
	}
	return h.addFloatingIP(ctx, ri, fip)
}

// FloatingIPRemoved removes a floating IP.
func (h *Helper) FloatingIPRemoved(ctx context.Context, r *model.LogicalRouter, fip model.FloatingIP) error {
	ri := h.routers[r.ID]
	if ri == nil || ri.GatewayPort == nil {
		return nil
	}
	if tracked, ok := ri.FloatingIPs[fip.FloatingIPAddress]; ok {
		fip = tracked
	}
	cs, err := h.drv.FloatingIPRemoved(ctx, ri.Router, ri.GatewayPort, fip)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s floating ip %s: %w", r.ID, fip.FloatingIPAddress, err)
	}
	delete(ri.FloatingIPs, fip.FloatingIPAddress)
	return nil
}

// ============================================================================
// Snapshot reconciliation
// ============================================================================

// ProcessRouter brings the device in line with snapshot r, issuing only the
// changes since the last call for the same router.
func (h *Helper) ProcessRouter(ctx context.Context, r *model.LogicalRouter) error {
	return h.process(ctx, r, false)
}

// ReapplyRouter is ProcessRouter that also re-issues everything already
// tracked. It is used during a full resync, when the driver filters out
// commands the device already has.
func (h *Helper) ReapplyRouter(ctx context.Context, r *model.LogicalRouter) error {
	return h.process(ctx, r, true)
}

func (h *Helper) process(ctx context.Context, r *model.LogicalRouter, reapply bool) error {
	if !r.AdminStateUp {
		return h.RemoveRouter(ctx, r.ID)
	}
	desired := r.GatewayPort

	// The old gateway is torn down with the router it was attached for.
	if old := h.routers[r.ID]; old != nil && !r.IsGlobal() && old.GatewayPort != nil &&
		(desired == nil || desired.ID != old.GatewayPort.ID) {
		if err := h.ExternalGatewayCleared(ctx, r.ID); err != nil {
			return err
		}
	}
	ri := h.track(r)

	if r.IsGlobal() {
		return errors.Join(h.removeStalePorts(ctx, ri), h.addPorts(ctx, ri, reapply))
	}
	if desired == nil {
		// Ports seen before the gateway are not configured.
		ri.InternalPorts = nil
		return nil
	}
	if ri.GatewayPort == nil || reapply {
		return errors.Join(
			h.removeStalePorts(ctx, ri),
			h.removeStaleFloatingIPs(ctx, ri),
			h.gatewaySet(ctx, r, reapply),
		)
	}

	return errors.Join(
		h.removeStalePorts(ctx, ri),
		h.removeStaleFloatingIPs(ctx, ri),
		h.addPorts(ctx, ri, false),
		h.addFloatingIPs(ctx, ri, false),
	)
}

// RemoveRouter unconfigures everything tracked for a router and forgets it.
// On failure the router stays tracked so a retry can finish the job.
func (h *Helper) RemoveRouter(ctx context.Context, id string) error {
	ri := h.routers[id]
	if ri == nil {
		return nil
	}
	if ri.Router.IsGlobal() {
		var errs []error
		for _, p := range append([]*model.Port(nil), ri.InternalPorts...) {
			if err := h.removePort(ctx, ri, p); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	} else if err := h.ExternalGatewayCleared(ctx, id); err != nil {
		return err
	}
	if err := h.releaseVRF(ctx, ri); err != nil {
		return err
	}
	delete(h.routers, id)
	return nil
}

func (h *Helper) addPort(ctx context.Context, ri *RouterInfo, p *model.Port) error {
	p = h.withTransit(ri.Router, p)
	cs, err := h.drv.InternalNetworkAdded(ctx, ri.Router, p)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s port %s: %w", ri.Router.ID, p.ID, err)
	}
	if _, tracked := ri.port(p.ID); tracked == nil {
		ri.InternalPorts = append(ri.InternalPorts, p)
	}
	return nil
}

func (h *Helper) removePort(ctx context.Context, ri *RouterInfo, p *model.Port) error {
	cs, err := h.drv.InternalNetworkRemoved(ctx, ri.Router, p)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s port %s: %w", ri.Router.ID, p.ID, err)
	}
	ri.dropPort(p.ID)
	return nil
}

// addPorts adds each admin-up port of the snapshot that is not tracked yet,
// or every one of them when reapply is set.
func (h *Helper) addPorts(ctx context.Context, ri *RouterInfo, reapply bool) error {
	var errs []error
	for _, p := range ri.Router.ActiveInterfaces() {
		if _, tracked := ri.port(p.ID); tracked != nil && !reapply {
			continue
		}
		if err := h.addPort(ctx, ri, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// removeStalePorts removes tracked ports that are gone from the snapshot or
// admin-down.
func (h *Helper) removeStalePorts(ctx context.Context, ri *RouterInfo) error {
	want := make(map[string]bool)
	for _, p := range ri.Router.ActiveInterfaces() {
		want[p.ID] = true
	}
	var errs []error
	for _, p := range append([]*model.Port(nil), ri.InternalPorts...) {
		if want[p.ID] {
			continue
		}
		if !ri.ready() {
			ri.dropPort(p.ID)
			continue
		}
		if err := h.removePort(ctx, ri, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Helper) addFloatingIP(ctx context.Context, ri *RouterInfo, fip model.FloatingIP) error {
	cs, err := h.drv.FloatingIPAdded(ctx, ri.Router, ri.GatewayPort, fip)
	h.record(cs, err)
	if err != nil {
		return fmt.Errorf("router %s floating ip %s: %w", ri.Router.ID, fip.FloatingIPAddress, err)
	}
	ri.FloatingIPs[fip.FloatingIPAddress] = fip
	return nil
}

func (h *Helper) addFloatingIPs(ctx context.Context, ri *RouterInfo, reapply bool) error {
	var errs []error
	for _, fip := range ri.Router.FloatingIPs {
		if _, tracked := ri.FloatingIPs[fip.FloatingIPAddress]; tracked && !reapply {
			continue
		}
		if err := h.addFloatingIP(ctx, ri, fip); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// removeStaleFloatingIPs removes tracked floating IPs that are gone or now
// map to a different fixed address.
func (h *Helper) removeStaleFloatingIPs(ctx context.Context, ri *RouterInfo) error {
	want := make(map[string]model.FloatingIP)
	for _, fip := range ri.Router.FloatingIPs {
		want[fip.FloatingIPAddress] = fip
	}
	var errs []error
	for addr, fip := range ri.FloatingIPs {
		if w, ok := want[addr]; ok && w == fip {
			continue
		}
		if err := h.FloatingIPRemoved(ctx, ri.Router, fip); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

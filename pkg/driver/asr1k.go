package driver

import (
	"context"
	"strings"
	"sync"

	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// FamilyASR1k is the ACI-attached ASR1000 family.
const FamilyASR1k = "asr1k"

type asr1k struct {
	opts Options

	mu  sync.Mutex
	gen uint64
	obs *device.Observed

	// removed holds the create forms of commands this pass took off the
	// device; obs no longer vouches for them.
	removed map[string]bool
}

func newASR1k(opts Options) *asr1k {
	return &asr1k{opts: opts}
}

func (d *asr1k) Name() string   { return FamilyASR1k }
func (d *asr1k) Device() string { return d.opts.Device }

// ResolveVRF returns DefaultVRF for the global router and defers to the
// configured strategy otherwise.
func (d *asr1k) ResolveVRF(r *model.LogicalRouter) (string, error) {
	if r.IsGlobal() {
		return DefaultVRF, nil
	}
	return d.opts.VRFs.ResolveVRF(r)
}

func (d *asr1k) BeginResync(obs *device.Observed) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.obs = obs
	d.removed = make(map[string]bool)
	if obs != nil {
		vrfs, vlans := obs.Summary()
		util.WithDevice(d.opts.Device).Debugf("resync %d: observed vrfs %v vlans %v", d.gen, vrfs, vlans)
	}
	return d.gen
}

func (d *asr1k) EndResync(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		util.WithDevice(d.opts.Device).Debugf("ignoring end of stale resync %d (current %d)", gen, d.gen)
		return
	}
	d.obs = nil
	d.removed = nil
}

// observed returns the snapshot of the resync in progress, or nil.
func (d *asr1k) observed() *device.Observed {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.obs
}

// forget records removal commands pushed while obs is the current snapshot.
func (d *asr1k) forget(obs *device.Observed, changes []Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if obs == nil || obs != d.obs {
		return
	}
	for _, c := range changes {
		if c.Type == ChangeDelete {
			d.removed[createForm(c.Command)] = true
		}
	}
}

// removedInPass reports whether cmd, or the mode it configures, was removed
// since the snapshot was taken.
func (d *asr1k) removedInPass(cmd string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.removed {
		if cmd == k || strings.HasPrefix(cmd, k+": ") {
			return true
		}
	}
	return false
}

// createForm maps a rendered removal command to the command it undoes.
func createForm(cmd string) string {
	cmd = strings.TrimPrefix(cmd, "no ")
	cmd = strings.ReplaceAll(cmd, ": no ", ": ")
	return strings.ReplaceAll(cmd, "; no ", "; ")
}

// ============================================================================
// Command emission
// ============================================================================

// emitter queues rendered commands on a change set and pushes them to the
// session in batches. One emitter serves a single driver operation.
type emitter struct {
	d   *asr1k
	cs  *ChangeSet
	obs *device.Observed
}

func (d *asr1k) begin(r *model.LogicalRouter, op string) *emitter {
	id := ""
	if r != nil {
		id = r.ID
	}
	return &emitter{d: d, cs: NewChangeSet(d.opts.Device, id, op), obs: d.observed()}
}

func (e *emitter) queue(t snippets.Template, ct ChangeType, args ...string) error {
	cmd, err := t.Render(args...)
	if err != nil {
		return err
	}
	e.cs.pending = append(e.cs.pending, Change{Template: t.Name, Command: cmd, Type: ct})
	return nil
}

// add queues a create-style command unless the resync snapshot already
// carries it.
func (e *emitter) add(t snippets.Template, args ...string) error {
	cmd, err := t.Render(args...)
	if err != nil {
		return err
	}
	if e.obs.HasCommand(cmd) && !e.d.removedInPass(cmd) {
		util.WithDevice(e.d.opts.Device).Debugf("already configured: %s", cmd)
		return nil
	}
	e.cs.pending = append(e.cs.pending, Change{Template: t.Name, Command: cmd, Type: ChangeAdd})
	return nil
}

func (e *emitter) del(t snippets.Template, args ...string) error {
	return e.queue(t, ChangeDelete, args...)
}

// flush pushes queued commands. On failure the queue is dropped: what the
// device accepted before the failing line is unknown.
func (e *emitter) flush(ctx context.Context) error {
	if len(e.cs.pending) == 0 {
		return nil
	}
	batch := e.cs.pending
	e.cs.pending = nil
	cmds := make([]string, len(batch))
	for i, c := range batch {
		cmds[i] = c.Command
	}
	if err := e.d.opts.Session.Apply(ctx, cmds); err != nil {
		return err
	}
	e.cs.Changes = append(e.cs.Changes, batch...)
	e.d.forget(e.obs, batch)
	return nil
}

// hasSubInterface reports whether the snapshot shows p's sub-interface on
// its VLAN and this pass has not removed it.
func (e *emitter) hasSubInterface(p *model.Port) bool {
	sub := p.SubInterface()
	return e.obs.HasSubInterface(sub, p.HostingInfo.SegmentationID) && !e.d.removedInPass("interface "+sub)
}

// done flushes unless err is already set. Queued commands are discarded on
// error so a failed operation never half-applies what it computed.
func (e *emitter) done(ctx context.Context, err error) (*ChangeSet, error) {
	if err != nil {
		e.cs.pending = nil
		return e.cs, err
	}
	return e.cs, e.flush(ctx)
}

// ============================================================================
// Operations
// ============================================================================

func (d *asr1k) InternalNetworkAdded(ctx context.Context, r *model.LogicalRouter, p *model.Port) (*ChangeSet, error) {
	e := d.begin(r, "internal-network-add")
	if r.IsGlobal() {
		return e.done(ctx, d.attachGateway(ctx, e, r, p))
	}
	return e.done(ctx, d.addInternal(e, r, p))
}

func (d *asr1k) InternalNetworkRemoved(ctx context.Context, r *model.LogicalRouter, p *model.Port) (*ChangeSet, error) {
	e := d.begin(r, "internal-network-remove")
	if r.IsGlobal() {
		return e.done(ctx, d.detachGateway(ctx, e, r, p))
	}
	return e.done(ctx, d.removeInternal(e, r, p))
}

func (d *asr1k) ExternalGatewayAdded(ctx context.Context, r *model.LogicalRouter, gw *model.Port) (*ChangeSet, error) {
	e := d.begin(r, "external-gateway-add")
	return e.done(ctx, d.attachGateway(ctx, e, r, gw))
}

func (d *asr1k) ExternalGatewayRemoved(ctx context.Context, r *model.LogicalRouter, gw *model.Port) (*ChangeSet, error) {
	e := d.begin(r, "external-gateway-remove")
	return e.done(ctx, d.detachGateway(ctx, e, r, gw))
}

func (d *asr1k) FloatingIPAdded(ctx context.Context, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) (*ChangeSet, error) {
	e := d.begin(r, "floating-ip-add")
	return e.done(ctx, d.addFloatingIP(ctx, e, r, gw, fip))
}

func (d *asr1k) FloatingIPRemoved(ctx context.Context, r *model.LogicalRouter, gw *model.Port, fip model.FloatingIP) (*ChangeSet, error) {
	e := d.begin(r, "floating-ip-remove")
	return e.done(ctx, d.removeFloatingIP(ctx, e, r, gw, fip))
}

// CreateVRF defines vrf on the device. The default context is never created.
func (d *asr1k) CreateVRF(ctx context.Context, vrf string) (*ChangeSet, error) {
	e := d.begin(nil, "vrf-create")
	if vrf == DefaultVRF {
		return e.cs, nil
	}
	if e.obs.HasVRF(vrf) && !d.removedInPass("vrf definition "+vrf) {
		util.WithDevice(d.opts.Device).Debugf("VRF %s already defined", vrf)
		return e.cs, nil
	}
	return e.done(ctx, e.add(snippets.CreateVRF, vrf))
}

// RemoveVRF deletes vrf from the device. The default context is never removed.
func (d *asr1k) RemoveVRF(ctx context.Context, vrf string) (*ChangeSet, error) {
	e := d.begin(nil, "vrf-remove")
	if vrf == DefaultVRF {
		return e.cs, nil
	}
	return e.done(ctx, e.del(snippets.RemoveVRF, vrf))
}

package driver

import (
	"strconv"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// hsrpArgs computes the SET_HSRP/REMOVE_HSRP arguments. ok is false when any
// of address, group, priority or virtual IP is unknown; HSRP is then skipped.
func hsrpArgs(r *model.LogicalRouter, p *model.Port, vrf, ip string, external bool) ([]string, bool) {
	if p.HAInfo == nil || ip == "" {
		return nil, false
	}
	group := p.HAInfo.Group
	priority := r.EffectivePriority()

	var vip string
	if external {
		vip = p.HAInfo.HAPortIP
	} else if next, err := util.NextAddr(ip); err == nil {
		vip = next
	}
	if group == 0 || priority == 0 || vip == "" {
		return nil, false
	}
	return []string{p.SubInterface(), vrf, strconv.Itoa(group), vip, strconv.Itoa(priority)}, true
}

func (d *asr1k) addHA(e *emitter, r *model.LogicalRouter, p *model.Port, vrf, ip string, external bool) error {
	args, ok := hsrpArgs(r, p, vrf, ip, external)
	if !ok {
		util.WithRouter(d.opts.Device, r.ID).Debugf("port %s: incomplete HA parameters, no HSRP", p.ID)
		return nil
	}
	return e.add(snippets.SetHSRP, args...)
}

func (d *asr1k) removeHA(e *emitter, r *model.LogicalRouter, p *model.Port, vrf, ip string, external bool) error {
	args, ok := hsrpArgs(r, p, vrf, ip, external)
	if !ok {
		return nil
	}
	return e.del(snippets.RemoveHSRP, args...)
}

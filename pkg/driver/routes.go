package driver

import (
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// tenantRoute returns the SET_TENANT_ROUTE/REMOVE_TENANT_ROUTE arguments for
// an internal port: its first subnet via the layout's next hop.
func (d *asr1k) tenantRoute(vrf string, p *model.Port) ([]string, error) {
	if len(p.Subnets) == 0 || p.Subnets[0].CIDR == "" {
		return nil, util.NewMalformedInputError("port "+p.ID, "subnets", "no subnet to route")
	}
	network, mask, err := util.NetworkAndMask(p.Subnets[0].CIDR)
	if err != nil {
		return nil, util.NewMalformedInputError("port "+p.ID, "subnets", err.Error())
	}
	nextHop, err := d.opts.Layout.NextHop(p)
	if err != nil {
		return nil, err
	}
	return []string{vrf, network, mask, p.SubInterface(), nextHop}, nil
}

// gatewayRoutes lists the default-route commands for a gateway port: one
// IPv4 default via the first IPv4 subnet's gateway, and one IPv6 default if
// any subnet is IPv6.
func gatewayRoutes(vrf string, gw *model.Port, remove bool) []routeCmd {
	var out []routeCmd
	v4, v6 := false, false
	for _, s := range gw.Subnets {
		if util.IsIPv6(s.CIDR) {
			if !v6 {
				v6 = true
				t := snippets.SetRouteV6
				if remove {
					t = snippets.RemoveRouteV6
				}
				out = append(out, routeCmd{t, []string{vrf, gw.SubInterface()}})
			}
			continue
		}
		if v4 || s.GatewayIP == "" {
			continue
		}
		v4 = true
		t := snippets.SetDefaultRoute
		if remove {
			t = snippets.RemoveDefaultRoute
		}
		out = append(out, routeCmd{t, []string{vrf, gw.SubInterface(), s.GatewayIP}})
	}
	return out
}

type routeCmd struct {
	tmpl snippets.Template
	args []string
}

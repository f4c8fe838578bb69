// Package model defines the desired-state snapshot of a tenant logical router
// as handed over by the control plane. Snapshots are immutable from the
// engine's point of view; nothing here outlives a reconciliation call.
package model

import (
	"fmt"

	"github.com/newtron-network/routersync/pkg/util"
)

// Role is the router's role on the hosting device.
type Role string

const (
	RoleStandalone   Role = "standalone"
	RoleHARedundancy Role = "ha-redundancy"
	// RoleGlobal models the device's default routing context; its "internal"
	// ports are really external-gateway ports.
	RoleGlobal Role = "global"
)

// LogicalRouter is one tenant router placed on a hosting device.
type LogicalRouter struct {
	ID              string       `yaml:"id" json:"id"`
	TenantID        string       `yaml:"tenant_id" json:"tenant_id"`
	Name            string       `yaml:"name,omitempty" json:"name,omitempty"`
	Role            Role         `yaml:"role,omitempty" json:"role,omitempty"`
	AdminStateUp    bool         `yaml:"admin_state_up" json:"admin_state_up"`
	HostingDevice   string       `yaml:"hosting_device" json:"hosting_device"`
	L3PolicyID      string       `yaml:"l3_policy_id,omitempty" json:"l3_policy_id,omitempty"`
	ExternalNetwork string       `yaml:"external_network,omitempty" json:"external_network,omitempty"`
	GatewayPort     *Port        `yaml:"gw_port,omitempty" json:"gw_port,omitempty"`
	Interfaces      []*Port      `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
	FloatingIPs     []FloatingIP `yaml:"floating_ips,omitempty" json:"floating_ips,omitempty"`
	HA              HAConfig     `yaml:"ha,omitempty" json:"ha,omitempty"`
}

// HAConfig is the router's redundancy configuration.
type HAConfig struct {
	Enabled           bool               `yaml:"enabled" json:"enabled"`
	Priority          int                `yaml:"priority,omitempty" json:"priority,omitempty"`
	RedundancyRouters []RedundancyRouter `yaml:"redundancy_routers,omitempty" json:"redundancy_routers,omitempty"`
}

// RedundancyRouter is one member of the router's HA group.
type RedundancyRouter struct {
	ID       string `yaml:"id" json:"id"`
	Priority int    `yaml:"priority" json:"priority"`
}

// Port is a router port with its device-facing hosting attributes.
type Port struct {
	ID           string      `yaml:"id" json:"id"`
	AdminStateUp bool        `yaml:"admin_state_up" json:"admin_state_up"`
	IPCIDR       string      `yaml:"ip_cidr,omitempty" json:"ip_cidr,omitempty"`
	FixedIPs     []string    `yaml:"fixed_ips,omitempty" json:"fixed_ips,omitempty"`
	Subnets      []Subnet    `yaml:"subnets,omitempty" json:"subnets,omitempty"`
	ExtraSubnets []Subnet    `yaml:"extra_subnets,omitempty" json:"extra_subnets,omitempty"`
	HostingInfo  HostingInfo `yaml:"hosting_info" json:"hosting_info"`
	HAInfo       *PortHAInfo `yaml:"ha_info,omitempty" json:"ha_info,omitempty"`
}

// Subnet is a neutron subnet attached to a port.
type Subnet struct {
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	CIDR      string `yaml:"cidr" json:"cidr"`
	GatewayIP string `yaml:"gateway_ip,omitempty" json:"gateway_ip,omitempty"`
}

// HostingInfo carries the attributes the plugging layer attached to a port
// for the hosting device.
type HostingInfo struct {
	PhysicalInterface string       `yaml:"physical_interface" json:"physical_interface"`
	SegmentationID    int          `yaml:"segmentation_id" json:"segmentation_id"`
	CIDRExposed       string       `yaml:"cidr_exposed,omitempty" json:"cidr_exposed,omitempty"`
	GatewayIP         string       `yaml:"gateway_ip,omitempty" json:"gateway_ip,omitempty"`
	NextHop           string       `yaml:"next_hop,omitempty" json:"next_hop,omitempty"`
	InterfaceConfig   []string     `yaml:"interface_config,omitempty" json:"interface_config,omitempty"`
	SNATSubnets       []SNATSubnet `yaml:"snat_subnets,omitempty" json:"snat_subnets,omitempty"`
}

// SNATSubnet is a source-NAT subnet attached to a gateway port.
type SNATSubnet struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	CIDR string `yaml:"cidr" json:"cidr"`
	IP   string `yaml:"ip" json:"ip"`
}

// PortHAInfo is the HSRP binding of a port.
type PortHAInfo struct {
	Group int `yaml:"group" json:"group"`
	// HAPortIP is the fixed IP of the peer HA port; used as the virtual IP
	// for gateway ports.
	HAPortIP string `yaml:"ha_port_ip,omitempty" json:"ha_port_ip,omitempty"`
}

// FloatingIP is a public address statically translated to a private one.
type FloatingIP struct {
	ID                string `yaml:"id,omitempty" json:"id,omitempty"`
	FloatingIPAddress string `yaml:"floating_ip_address" json:"floating_ip_address"`
	FixedIPAddress    string `yaml:"fixed_ip_address" json:"fixed_ip_address"`
	// SubnetCIDR is the owning external subnet. When empty it is looked up
	// among the gateway port's subnets.
	SubnetCIDR string `yaml:"subnet_cidr,omitempty" json:"subnet_cidr,omitempty"`
}

// TransitNetwork holds the per-external-network transit parameters used to
// fill in internal-port hosting info the plugging layer did not supply.
type TransitNetwork struct {
	GatewayIP   string `yaml:"gateway_ip" json:"gateway_ip"`
	CIDRExposed string `yaml:"cidr_exposed" json:"cidr_exposed"`
	NextHop     string `yaml:"next_hop,omitempty" json:"next_hop,omitempty"`
}

// DefaultTransitNetwork is used when no transit entry matches the router's
// external network.
var DefaultTransitNetwork = TransitNetwork{
	GatewayIP:   "1.103.2.254",
	CIDRExposed: "1.103.2.1/24",
}

// TransitTable maps external network names to their transit parameters.
type TransitTable map[string]TransitNetwork

// Lookup returns the entry for extNet, or DefaultTransitNetwork.
func (t TransitTable) Lookup(extNet string) TransitNetwork {
	if tn, ok := t[extNet]; ok {
		return tn
	}
	return DefaultTransitNetwork
}

// SubInterface returns the VLAN sub-interface name, e.g. "po10.304".
func (p *Port) SubInterface() string {
	return fmt.Sprintf("%s.%d", p.HostingInfo.PhysicalInterface, p.HostingInfo.SegmentationID)
}

// IsIPv6 reports whether the port's first subnet is IPv6.
func (p *Port) IsIPv6() bool {
	return len(p.Subnets) > 0 && util.IsIPv6(p.Subnets[0].CIDR)
}

// HasInterfaceConfig reports whether the port carries declarative
// sub-interface directives.
func (p *Port) HasInterfaceConfig() bool {
	return len(p.HostingInfo.InterfaceConfig) > 0
}

// WithTransitDefaults returns a copy of p whose empty transit attributes are
// filled from t. Attributes the plugging layer already set are kept.
func (p *Port) WithTransitDefaults(t TransitNetwork) *Port {
	cp := *p
	hi := p.HostingInfo
	if hi.CIDRExposed == "" {
		hi.CIDRExposed = t.CIDRExposed
	}
	if hi.GatewayIP == "" {
		hi.GatewayIP = t.GatewayIP
	}
	if hi.NextHop == "" {
		hi.NextHop = t.NextHop
	}
	cp.HostingInfo = hi
	return &cp
}

// String identifies the router in logs.
func (r *LogicalRouter) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.ID)
	}
	return r.ID
}

// IsGlobal reports whether the router models the default routing context.
func (r *LogicalRouter) IsGlobal() bool {
	return r.Role == RoleGlobal
}

// ActiveInterfaces returns the admin-up internal ports in snapshot order.
func (r *LogicalRouter) ActiveInterfaces() []*Port {
	var out []*Port
	for _, p := range r.Interfaces {
		if p != nil && p.AdminStateUp {
			out = append(out, p)
		}
	}
	return out
}

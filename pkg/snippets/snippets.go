// Package snippets holds the CLI command templates understood by the hosting
// device. The strings are the wire contract with existing device images and
// must not change.
//
// A template is a fixed format with {placeholder} fields. Arguments are
// substituted positionally in the order placeholders first appear; a
// placeholder used twice (the HSRP group) consumes one argument.
//
// Rendered commands use ": " to descend into a configuration mode and "; "
// to separate sibling commands inside the innermost mode:
//
//	interface po10.304: ip address 1.103.2.254 255.255.255.0 secondary
//
// Lines expands that into the line-oriented form the device consumes.
package snippets

import (
	"fmt"
	"strings"
)

// Template is a named, parameterised device command.
type Template struct {
	Name   string
	Format string
	params []string
}

func newTemplate(name, format string) Template {
	return Template{Name: name, Format: format, params: placeholders(format)}
}

// Params returns the placeholder names in argument order.
func (t Template) Params() []string {
	return append([]string(nil), t.params...)
}

// Render substitutes args into the template. The only validation is the
// argument count.
func (t Template) Render(args ...string) (string, error) {
	if len(args) != len(t.params) {
		return "", fmt.Errorf("%s: expected %d arguments (%s), got %d",
			t.Name, len(t.params), strings.Join(t.params, ", "), len(args))
	}
	out := t.Format
	for i, p := range t.params {
		out = strings.ReplaceAll(out, "{"+p+"}", args[i])
	}
	return out, nil
}

// MustRender is Render for callers whose argument list is fixed at compile
// time. It panics on a count mismatch.
func (t Template) MustRender(args ...string) string {
	s, err := t.Render(args...)
	if err != nil {
		panic(err)
	}
	return s
}

func placeholders(format string) []string {
	var names []string
	seen := make(map[string]bool)
	rest := format
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return names
		}
		name := rest[open+1 : open+end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[open+end+1:]
	}
}

// Lines expands a rendered command into device CLI lines. Nested modes are
// indented one space per level, matching running-config output.
func Lines(cmd string) []string {
	modes := strings.Split(cmd, ": ")
	var lines []string
	for depth, mode := range modes[:len(modes)-1] {
		lines = append(lines, strings.Repeat(" ", depth)+mode)
	}
	depth := len(modes) - 1
	for _, leaf := range strings.Split(modes[len(modes)-1], "; ") {
		lines = append(lines, strings.Repeat(" ", depth)+leaf)
	}
	return lines
}

// ============================================================================
// Tenant routes
// ============================================================================

var (
	// ip route vrf nrouter-e7d4y5 40.0.0.0 255.255.255.0 pc.4 1.0.10.255
	SetTenantRoute    = newTemplate("SET_TENANT_ROUTE", "ip route vrf {vrf} {subnet} {mask} {interface} {next_hop}")
	RemoveTenantRoute = newTemplate("REMOVE_TENANT_ROUTE", "no ip route vrf {vrf} {subnet} {mask} {interface} {next_hop}")

	// ipv6 route vrf nrouter-e7d4y5 ::/0 po10.304 nexthop-vrf default
	SetRouteV6    = newTemplate("SET_ROUTE_V6", "ipv6 route vrf {vrf} ::/0 {interface} nexthop-vrf default")
	RemoveRouteV6 = newTemplate("REMOVE_ROUTE_V6", "no ipv6 route vrf {vrf} ::/0 {interface} nexthop-vrf default")

	SetDefaultRoute    = newTemplate("SET_DEFAULT_ROUTE", "ip route vrf {vrf} 0.0.0.0 0.0.0.0 {interface} {next_hop}")
	RemoveDefaultRoute = newTemplate("REMOVE_DEFAULT_ROUTE", "no ip route vrf {vrf} 0.0.0.0 0.0.0.0 {interface} {next_hop}")
)

// ============================================================================
// VRFs and sub-interfaces
// ============================================================================

var (
	CreateVRF = newTemplate("CREATE_VRF", "vrf definition {vrf}: address-family ipv4; exit-address-family; address-family ipv6; exit-address-family")
	RemoveVRF = newTemplate("REMOVE_VRF", "no vrf definition {vrf}")

	CreateSubInterface       = newTemplate("CREATE_SUBINTERFACE", "interface {sub_interface}: encapsulation dot1Q {vlan}; vrf forwarding {vrf}; ip address {ip} {mask}")
	CreateSubInterfaceRegion = newTemplate("CREATE_SUBINTERFACE_REGION", "interface {sub_interface}: description OPENSTACK_NEUTRON_{region}_INTF; encapsulation dot1Q {vlan}; vrf forwarding {vrf}; ip address {ip} {mask}")
	CreateSubInterfaceGlobal = newTemplate("CREATE_SUBINTERFACE_GLOBAL", "interface {sub_interface}: encapsulation dot1Q {vlan}; ip address {ip} {mask}")
	RemoveSubInterface       = newTemplate("REMOVE_SUBINTERFACE", "no interface {sub_interface}")

	// Declarative per-port directives, applied verbatim.
	SetInterfaceConfig    = newTemplate("SET_INTERFACE_CONFIG", "interface {sub_interface}: {config}")
	RemoveInterfaceConfig = newTemplate("REMOVE_INTERFACE_CONFIG", "interface {sub_interface}: no {config}")

	SetSecondaryIP    = newTemplate("SET_SECONDARY_IP", "interface {sub_interface}: ip address {secondary_ip} {netmask} secondary")
	RemoveSecondaryIP = newTemplate("REMOVE_SECONDARY_IP", "interface {sub_interface}: no ip address {secondary_ip} {netmask} secondary")
)

// ============================================================================
// NAT
// ============================================================================

var (
	SetStaticNAT      = newTemplate("SET_STATIC_NAT", "ip nat inside source static {fixed_ip} {floating_ip} vrf {vrf}")
	RemoveStaticNAT   = newTemplate("REMOVE_STATIC_NAT", "no ip nat inside source static {fixed_ip} {floating_ip} vrf {vrf}")
	SetStaticNATHA    = newTemplate("SET_STATIC_NAT_HA", "ip nat inside source static {fixed_ip} {floating_ip} vrf {vrf} redundancy {ha_group} vlan {vlan}")
	RemoveStaticNATHA = newTemplate("REMOVE_STATIC_NAT_HA", "no ip nat inside source static {fixed_ip} {floating_ip} vrf {vrf} redundancy {ha_group} vlan {vlan}")

	SetNATPool    = newTemplate("SET_NAT_POOL", "ip nat pool {pool_name} {start} {end} netmask {net}")
	RemoveNATPool = newTemplate("REMOVE_NAT_POOL", "no ip nat pool {pool_name} {start} {end} netmask {net}")
)

// ============================================================================
// HSRP
// ============================================================================

var (
	SetHSRP    = newTemplate("SET_HSRP", "interface {sub_interface}: vrf {vrf}: standby {group} ip {virtual_ip}; standby {group} priority {priority}")
	RemoveHSRP = newTemplate("REMOVE_HSRP", "interface {sub_interface}: vrf {vrf}: no standby {group} ip {virtual_ip}; no standby {group} priority {priority}")
)

package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newtron-network/routersync/pkg/util"
)

// ===================== Port Tests =====================

func TestPort_SubInterface(t *testing.T) {
	p := &Port{HostingInfo: HostingInfo{PhysicalInterface: "po10", SegmentationID: 304}}
	if got := p.SubInterface(); got != "po10.304" {
		t.Errorf("SubInterface() = %q, want %q", got, "po10.304")
	}
}

func TestPort_IsIPv6(t *testing.T) {
	tests := []struct {
		name    string
		subnets []Subnet
		want    bool
	}{
		{"v4", []Subnet{{CIDR: "40.0.0.0/24"}}, false},
		{"v6", []Subnet{{CIDR: "2001:db8::/64"}}, true},
		{"no subnets", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Port{Subnets: tt.subnets}
			if got := p.IsIPv6(); got != tt.want {
				t.Errorf("IsIPv6() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPort_WithTransitDefaults(t *testing.T) {
	p := &Port{
		ID: "p1",
		HostingInfo: HostingInfo{
			PhysicalInterface: "pc",
			SegmentationID:    4,
			GatewayIP:         "10.0.0.254",
		},
	}

	got := p.WithTransitDefaults(DefaultTransitNetwork)

	if got.HostingInfo.CIDRExposed != "1.103.2.1/24" {
		t.Errorf("CIDRExposed = %q, want default", got.HostingInfo.CIDRExposed)
	}
	if got.HostingInfo.GatewayIP != "10.0.0.254" {
		t.Errorf("GatewayIP = %q, explicit value should be kept", got.HostingInfo.GatewayIP)
	}
	if p.HostingInfo.CIDRExposed != "" {
		t.Error("WithTransitDefaults must not modify the receiver")
	}
}

// ===================== Router Tests =====================

func TestLogicalRouter_ActiveInterfaces(t *testing.T) {
	r := &LogicalRouter{
		Interfaces: []*Port{
			{ID: "a", AdminStateUp: true},
			{ID: "b", AdminStateUp: false},
			nil,
			{ID: "c", AdminStateUp: true},
		},
	}

	got := r.ActiveInterfaces()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ActiveInterfaces() = %v", got)
	}
}

func TestLogicalRouter_Validate(t *testing.T) {
	good := func() *LogicalRouter {
		return &LogicalRouter{
			ID:       "r1",
			TenantID: "tenant-42",
			Role:     RoleStandalone,
			GatewayPort: &Port{
				ID:       "gw",
				IPCIDR:   "10.0.0.2/24",
				Subnets:  []Subnet{{CIDR: "10.0.0.0/24", GatewayIP: "10.0.0.1"}},
				FixedIPs: []string{"10.0.0.2"},
				HostingInfo: HostingInfo{
					PhysicalInterface: "pc",
					SegmentationID:    100,
				},
			},
			Interfaces: []*Port{{
				ID:      "p1",
				Subnets: []Subnet{{CIDR: "40.0.0.0/24"}},
				HostingInfo: HostingInfo{
					PhysicalInterface: "pc",
					SegmentationID:    4,
					CIDRExposed:       "1.103.2.1/24",
				},
			}},
			FloatingIPs: []FloatingIP{{FloatingIPAddress: "10.0.0.7", FixedIPAddress: "40.0.0.5"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *LogicalRouter)
		wantErr bool
	}{
		{"valid", func(r *LogicalRouter) {}, false},
		{"missing id", func(r *LogicalRouter) { r.ID = "" }, true},
		{"missing tenant", func(r *LogicalRouter) { r.TenantID = "" }, true},
		{"global without tenant", func(r *LogicalRouter) { r.TenantID = ""; r.Role = RoleGlobal }, false},
		{"bad role", func(r *LogicalRouter) { r.Role = "primary" }, true},
		{"vlan out of range", func(r *LogicalRouter) { r.Interfaces[0].HostingInfo.SegmentationID = 5000 }, true},
		{"bad subnet", func(r *LogicalRouter) { r.Interfaces[0].Subnets[0].CIDR = "40.0.0.0" }, true},
		{"bad exposed cidr", func(r *LogicalRouter) { r.Interfaces[0].HostingInfo.CIDRExposed = "x" }, true},
		{"duplicate interface", func(r *LogicalRouter) { r.Interfaces = append(r.Interfaces, r.Interfaces[0]) }, true},
		{"bad floating ip", func(r *LogicalRouter) { r.FloatingIPs[0].FixedIPAddress = "" }, true},
		// Missing exposed CIDR is a driver-level failure, not structural.
		{"no exposed cidr", func(r *LogicalRouter) { r.Interfaces[0].HostingInfo.CIDRExposed = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good()
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, util.ErrValidationFailed) {
				t.Errorf("error should wrap ErrValidationFailed: %v", err)
			}
		})
	}
}

// ===================== HA Tests =====================

func TestAuthoritative(t *testing.T) {
	tests := []struct {
		name   string
		router *LogicalRouter
		want   bool
	}{
		{
			name:   "ha disabled",
			router: &LogicalRouter{ID: "r1"},
			want:   true,
		},
		{
			name: "highest priority",
			router: &LogicalRouter{ID: "r1", HA: HAConfig{
				Enabled: true, Priority: 100,
				RedundancyRouters: []RedundancyRouter{{ID: "r2", Priority: 97}, {ID: "r3", Priority: 98}},
			}},
			want: true,
		},
		{
			name: "lower priority",
			router: &LogicalRouter{ID: "r2", HA: HAConfig{
				Enabled: true, Priority: 97,
				RedundancyRouters: []RedundancyRouter{{ID: "r1", Priority: 100}},
			}},
			want: false,
		},
		{
			name: "tie goes to lowest id",
			router: &LogicalRouter{ID: "r2", HA: HAConfig{
				Enabled: true, Priority: 100,
				RedundancyRouters: []RedundancyRouter{{ID: "r1", Priority: 100}},
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authoritative(tt.router); got != tt.want {
				t.Errorf("Authoritative() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectivePriority(t *testing.T) {
	peers := []RedundancyRouter{{ID: "r1", Priority: 100}, {ID: "r2", Priority: 97}}

	tests := []struct {
		name string
		role Role
		id   string
		want int
	}{
		{"standalone uses own", RoleStandalone, "r2", 50},
		{"redundancy member", RoleHARedundancy, "r2", 97},
		{"global member", RoleGlobal, "r1", 100},
		{"redundancy not listed", RoleHARedundancy, "r9", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &LogicalRouter{ID: tt.id, Role: tt.role, HA: HAConfig{Enabled: true, Priority: 50, RedundancyRouters: peers}}
			if got := r.EffectivePriority(); got != tt.want {
				t.Errorf("EffectivePriority() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ===================== Snapshot Tests =====================

const snapshotYAML = `
routers:
  - id: r1
    tenant_id: tenant-42
    admin_state_up: true
    hosting_device: asr-1
    gw_port:
      id: gw1
      admin_state_up: true
      ip_cidr: 10.0.0.2/24
      fixed_ips: [10.0.0.2]
      subnets:
        - {cidr: 10.0.0.0/24, gateway_ip: 10.0.0.1}
      hosting_info:
        physical_interface: pc
        segmentation_id: 100
    interfaces:
      - id: p1
        admin_state_up: true
        subnets: [{cidr: 40.0.0.0/24}]
        hosting_info:
          physical_interface: pc
          segmentation_id: 4
          cidr_exposed: 1.103.2.1/24
          gateway_ip: 10.0.0.254
    floating_ips:
      - {floating_ip_address: 10.0.0.7, fixed_ip_address: 40.0.0.5}
  - id: r2
    tenant_id: tenant-42
    hosting_device: asr-2
`

func TestParseSnapshot(t *testing.T) {
	s, err := ParseSnapshot([]byte(snapshotYAML))
	if err != nil {
		t.Fatalf("ParseSnapshot() error: %v", err)
	}

	r, ok := s.Router("r1")
	if !ok {
		t.Fatal("router r1 not found")
	}
	if r.GatewayPort == nil || r.GatewayPort.HostingInfo.SegmentationID != 100 {
		t.Errorf("gateway port not decoded: %+v", r.GatewayPort)
	}
	if len(r.Interfaces) != 1 || r.Interfaces[0].HostingInfo.GatewayIP != "10.0.0.254" {
		t.Errorf("interfaces not decoded: %+v", r.Interfaces)
	}

	if got := s.ForDevice("asr-1"); len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("ForDevice(asr-1) = %v", got)
	}
	if got := s.Devices(); len(got) != 2 || got[0] != "asr-1" || got[1] != "asr-2" {
		t.Errorf("Devices() = %v", got)
	}
}

func TestParseSnapshot_Duplicate(t *testing.T) {
	_, err := ParseSnapshot([]byte("routers:\n  - {id: r1, tenant_id: t}\n  - {id: r1, tenant_id: t}\n"))
	if err == nil {
		t.Fatal("expected duplicate router error")
	}
}

func TestLoadSnapshot_Directory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.yaml":    "routers:\n  - {id: r1, tenant_id: t, hosting_device: d1}\n",
		"b.yml":     "routers:\n  - {id: r2, tenant_id: t, hosting_device: d1}\n",
		"notes.txt": "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	s, err := LoadSnapshot(dir)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	if len(s.ForDevice("d1")) != 2 {
		t.Errorf("expected both routers merged, got %d", len(s.Routers))
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing snapshot")
	}
}

package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/util"
)

func fipGateway() *model.Port {
	gw := testGatewayPort()
	gw.HostingInfo.SNATSubnets = nil
	return gw
}

func TestFloatingIP_SecondaryRefcount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := testRouter()
	gw := fipGateway()
	fip1 := model.FloatingIP{FloatingIPAddress: "203.0.113.5", FixedIPAddress: "10.0.0.7", SubnetCIDR: "10.0.0.0/24"}
	fip2 := model.FloatingIP{FloatingIPAddress: "203.0.113.6", FixedIPAddress: "10.0.0.8", SubnetCIDR: "10.0.0.0/24"}

	if _, err := f.drv.FloatingIPAdded(ctx, r, gw, fip1); err != nil {
		t.Fatalf("FloatingIPAdded() error = %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"ip nat inside source static 10.0.0.7 203.0.113.5 vrf tenant-42",
		"interface po10.500: ip address 10.0.0.254 255.255.255.0 secondary",
	})

	f.rec.Reset()
	if _, err := f.drv.FloatingIPAdded(ctx, r, gw, fip2); err != nil {
		t.Fatalf("FloatingIPAdded() error = %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"ip nat inside source static 10.0.0.8 203.0.113.6 vrf tenant-42",
	})

	f.rec.Reset()
	if _, err := f.drv.FloatingIPRemoved(ctx, r, gw, fip1); err != nil {
		t.Fatalf("FloatingIPRemoved() error = %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"no ip nat inside source static 10.0.0.7 203.0.113.5 vrf tenant-42",
	})

	f.rec.Reset()
	if _, err := f.drv.FloatingIPRemoved(ctx, r, gw, fip2); err != nil {
		t.Fatalf("FloatingIPRemoved() error = %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"no ip nat inside source static 10.0.0.8 203.0.113.6 vrf tenant-42",
		"interface po10.500: no ip address 10.0.0.254 255.255.255.0 secondary",
	})
	if keys := f.reg.SecondaryIPs.Keys(); len(keys) != 0 {
		t.Errorf("secondary IPs left: %v", keys)
	}
}

func TestFloatingIP_SubnetLookup(t *testing.T) {
	gw := fipGateway()
	gw.ExtraSubnets = []model.Subnet{{CIDR: "203.0.113.0/24"}}

	tests := []struct {
		name string
		fip  model.FloatingIP
		want string
	}{
		{"explicit subnet", model.FloatingIP{FloatingIPAddress: "198.51.100.9", SubnetCIDR: "10.0.0.9/24"}, "10.0.0.0/24"},
		{"extra subnet", model.FloatingIP{FloatingIPAddress: "203.0.113.5"}, "203.0.113.0/24"},
		{"gateway subnet", model.FloatingIP{FloatingIPAddress: "172.16.0.20"}, "172.16.0.0/24"},
		{"no owning subnet", model.FloatingIP{FloatingIPAddress: "198.51.100.9"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fipSubnet(gw, tt.fip)
			if err != nil {
				t.Fatalf("fipSubnet() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("fipSubnet() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFloatingIP_HA(t *testing.T) {
	ctx := context.Background()
	gw := fipGateway()
	gw.HAInfo = &model.PortHAInfo{Group: 7, HAPortIP: "172.16.0.4"}
	fip := model.FloatingIP{FloatingIPAddress: "172.16.0.20", FixedIPAddress: "40.0.0.5"}

	t.Run("leader", func(t *testing.T) {
		f := newFixture(t)
		r := testRouter()
		r.HA = model.HAConfig{Enabled: true, Priority: 110,
			RedundancyRouters: []model.RedundancyRouter{{ID: "r2", Priority: 100}}}

		if _, err := f.drv.FloatingIPAdded(ctx, r, gw, fip); err != nil {
			t.Fatalf("FloatingIPAdded() error = %v", err)
		}
		assertCommands(t, f.rec.Commands(), []string{
			"ip nat inside source static 40.0.0.5 172.16.0.20 vrf tenant-42 redundancy 7 vlan 500",
			"interface po10.500: ip address 172.16.0.254 255.255.255.0 secondary",
		})
	})

	t.Run("standby", func(t *testing.T) {
		f := newFixture(t)
		r := testRouter()
		r.HA = model.HAConfig{Enabled: true, Priority: 90,
			RedundancyRouters: []model.RedundancyRouter{{ID: "r2", Priority: 100}}}

		cs, err := f.drv.FloatingIPAdded(ctx, r, gw, fip)
		if err != nil {
			t.Fatalf("FloatingIPAdded() error = %v", err)
		}
		if !cs.IsEmpty() {
			t.Errorf("standby member issued %v", cs.Commands())
		}
	})
}

func TestFloatingIP_NoGateway(t *testing.T) {
	f := newFixture(t)
	fip := model.FloatingIP{FloatingIPAddress: "203.0.113.5", FixedIPAddress: "10.0.0.7"}

	_, err := f.drv.FloatingIPAdded(context.Background(), testRouter(), nil, fip)
	if !errors.Is(err, util.ErrNotReady) {
		t.Errorf("error = %v, want ErrNotReady", err)
	}
}

func TestNATPool_SharedByVRF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := testRouter()
	r2 := testRouter()
	r2.ID = "r2"
	gw1 := testGatewayPort()
	gw2 := testGatewayPort()
	gw2.ID = "gw2"
	gw2.HostingInfo.SegmentationID = 501
	gw2.Subnets = nil

	if _, err := f.drv.ExternalGatewayAdded(ctx, r1, gw1); err != nil {
		t.Fatalf("r1 attach: %v", err)
	}
	f.rec.Reset()
	if _, err := f.drv.ExternalGatewayAdded(ctx, r2, gw2); err != nil {
		t.Fatalf("r2 attach: %v", err)
	}
	// The pool already exists; r2 only needs the pool address on its own
	// interface.
	assertCommands(t, f.rec.Commands(), []string{
		"interface po10.501: encapsulation dot1Q 501; vrf forwarding tenant-42; ip address 172.16.0.5 255.255.255.0",
		"interface po10.501: ip address 172.16.1.14 255.255.255.240 secondary",
	})
	if h := f.reg.NATPools.Holders("asr-1|tenant-42_nat_pool"); len(h) != 2 {
		t.Fatalf("pool holders = %v, want r1 and r2", h)
	}

	f.rec.Reset()
	if _, err := f.drv.ExternalGatewayRemoved(ctx, r1, gw1); err != nil {
		t.Fatalf("r1 detach: %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"no ip route vrf tenant-42 0.0.0.0 0.0.0.0 po10.500 172.16.0.1",
		"interface po10.500: no ip address 172.16.1.14 255.255.255.240 secondary",
		"no interface po10.500",
	})

	f.rec.Reset()
	if _, err := f.drv.ExternalGatewayRemoved(ctx, r2, gw2); err != nil {
		t.Fatalf("r2 detach: %v", err)
	}
	assertCommands(t, f.rec.Commands(), []string{
		"no ip nat pool tenant-42_nat_pool 172.16.1.3 172.16.1.3 netmask 255.255.255.240",
		"interface po10.501: no ip address 172.16.1.14 255.255.255.240 secondary",
		"no interface po10.501",
	})
	if len(f.reg.SecondaryIPs.Keys()) != 0 || len(f.reg.NATPools.Keys()) != 0 {
		t.Errorf("registry not empty: %v", f.reg.Dump())
	}
}

func TestNATPoolNames(t *testing.T) {
	gw := testGatewayPort()
	gw.HostingInfo.SNATSubnets = []model.SNATSubnet{
		{CIDR: "172.16.1.0/28", IP: "172.16.1.3"},
		{CIDR: "172.16.2.7/29", IP: "172.16.2.2"},
	}

	pools, err := snatPools("tenant-42", gw)
	if err != nil {
		t.Fatalf("snatPools() error = %v", err)
	}
	want := []natPool{
		{name: "tenant-42_nat_pool", ip: "172.16.1.3", cidr: "172.16.1.0/28", mask: "255.255.255.240"},
		{name: "tenant-42_nat_pool_1", ip: "172.16.2.2", cidr: "172.16.2.0/29", mask: "255.255.255.248"},
	}
	if len(pools) != len(want) {
		t.Fatalf("got %d pools, want %d", len(pools), len(want))
	}
	for i := range want {
		if pools[i] != want[i] {
			t.Errorf("pool %d = %+v, want %+v", i, pools[i], want[i])
		}
	}

	gw.HostingInfo.SNATSubnets = []model.SNATSubnet{{CIDR: "172.16.1.0", IP: "172.16.1.3"}}
	if _, err := snatPools("tenant-42", gw); !util.IsFatal(err) {
		t.Errorf("bad snat cidr error = %v, want malformed input", err)
	}
}

package main

import (
	"context"
	"strings"
	"testing"

	"github.com/newtron-network/routersync/pkg/config"
	"github.com/newtron-network/routersync/pkg/driver"
)

func setupApp(t *testing.T, cfgYAML string) {
	t.Helper()
	cfg, err := config.Parse([]byte(cfgYAML))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	saved := app
	t.Cleanup(func() { app = saved })
	app.cfg = cfg
	app.snapshotPath = "testdata/routers.yaml"
	app.deviceName = ""
}

func TestRenderDevices(t *testing.T) {
	setupApp(t, "devices: []\n")
	snap, err := loadSnapshot()
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}

	var ids []string
	for _, d := range renderDevices(snap) {
		ids = append(ids, d.ID)
	}
	if strings.Join(ids, ",") != "asr-1,asr-2" {
		t.Errorf("renderDevices() = %v, want the snapshot's devices", ids)
	}

	app.deviceName = "asr-9"
	if got := renderDevices(snap); len(got) != 1 || got[0].ID != "asr-9" || got[0].Family != driver.FamilyASR1k {
		t.Errorf("renderDevices(-d) = %+v", got)
	}
}

func TestRender(t *testing.T) {
	setupApp(t, "devices: [{id: asr-1, mgmt_ip: 10.0.0.10}]\n")
	snap, err := loadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	d, _ := app.cfg.Device("asr-1")

	res, err := render(context.Background(), d, snap, "")
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("render errors = %v", res.Errors)
	}
	var ops []string
	for _, cs := range res.ChangeSets {
		ops = append(ops, cs.Operation)
	}
	if strings.Join(ops, ",") != "vrf-create,external-gateway-add,internal-network-add,floating-ip-add" {
		t.Errorf("operations = %v", ops)
	}
	for _, want := range []string{
		"vrf definition tenant-42",
		"interface po10.500",
		"ip route vrf tenant-42 40.0.0.0 255.255.255.0 pc.4 10.0.0.254",
		"ip nat inside source static 40.0.0.7 172.16.0.20 vrf tenant-42",
	} {
		if !strings.Contains(res.Script, want) {
			t.Errorf("script missing %q:\n%s", want, res.Script)
		}
	}

	// Rendering against the configuration just produced changes nothing.
	again, err := render(context.Background(), d, snap, res.Script)
	if err != nil {
		t.Fatal(err)
	}
	if again.Script != "" {
		t.Errorf("second render not idempotent:\n%s", again.Script)
	}
}

func TestTargetDevices(t *testing.T) {
	setupApp(t, "devices: [{id: asr-1, mgmt_ip: 10.0.0.10}, {id: asr-2, mgmt_ip: 10.0.0.11}]\n")
	if got, err := targetDevices(); err != nil || len(got) != 2 {
		t.Errorf("targetDevices() = %v, %v", got, err)
	}
	app.deviceName = "asr-2"
	if got, err := targetDevices(); err != nil || len(got) != 1 || got[0].ID != "asr-2" {
		t.Errorf("targetDevices(-d) = %v, %v", got, err)
	}
	app.deviceName = "asr-9"
	if _, err := targetDevices(); err == nil {
		t.Error("targetDevices(unknown) should fail")
	}
}

func TestPassword(t *testing.T) {
	setupApp(t, "devices: []\n")
	pass, err := password(config.Device{ID: "asr-1", SSHPass: "secret"})
	if err != nil || pass != "secret" {
		t.Errorf("password() = %q, %v", pass, err)
	}
	app.askPass = false
	if pass, err := password(config.Device{ID: "asr-1"}); err != nil || pass != "" {
		t.Errorf("password() without --ask-pass = %q, %v", pass, err)
	}
}

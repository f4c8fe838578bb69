package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/cli"
	"github.com/newtron-network/routersync/pkg/config"
	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/reconcile"
	"github.com/newtron-network/routersync/pkg/registry"
)

var (
	renderRunning string
	renderScript  bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the commands a snapshot produces (no device access)",
	Long: `Render the snapshot's routers into device commands without connecting to
any device. By default each device starts from an empty configuration;
--running supplies a saved running-config (requires -d) so that objects
already present are skipped.

Examples:
  routersync render -f routers.yaml
  routersync render -d asr-1 --running asr-1.cfg --script`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		if renderRunning != "" && app.deviceName == "" {
			return fmt.Errorf("--running requires -d <device>")
		}
		running := ""
		if renderRunning != "" {
			data, err := os.ReadFile(renderRunning)
			if err != nil {
				return err
			}
			running = string(data)
		}

		var results []*renderResult
		for _, d := range renderDevices(snap) {
			res, err := render(ctx, d, snap, running)
			if err != nil {
				return fmt.Errorf("device %s: %w", d.ID, err)
			}
			results = append(results, res)
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(results)
		}
		for _, res := range results {
			printRender(res)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderRunning, "running", "", "Saved running-config of the -d device")
	renderCmd.Flags().BoolVar(&renderScript, "script", false, "Print raw CLI lines instead of change sets")
	addOutputFlags(renderCmd)
}

// renderResult is the dry-run outcome for one device.
type renderResult struct {
	Device     string              `json:"device"`
	ChangeSets []*driver.ChangeSet `json:"change_sets"`
	Errors     []string            `json:"errors,omitempty"`
	Script     string              `json:"script"`
}

// renderDevices returns the devices to render: -d, the configured devices,
// or every device the snapshot references.
func renderDevices(snap *model.Snapshot) []config.Device {
	if app.deviceName != "" {
		if d, ok := app.cfg.Device(app.deviceName); ok {
			return []config.Device{d}
		}
		return []config.Device{{ID: app.deviceName, Family: driver.FamilyASR1k}}
	}
	if len(app.cfg.Devices) > 0 {
		return app.cfg.Devices
	}
	var out []config.Device
	for _, id := range snap.Devices() {
		out = append(out, config.Device{ID: id, Family: driver.FamilyASR1k})
	}
	return out
}

// render runs one resync pass of the snapshot against a recording session.
func render(ctx context.Context, d config.Device, snap *model.Snapshot, running string) (*renderResult, error) {
	res := &renderResult{Device: d.ID}
	rec := device.NewRecorder(d.ID, running)
	reg := registry.New(nil)
	defer reg.Close()

	h, err := newHelper(d, rec, reg, func(cs *driver.ChangeSet, err error) {
		if !cs.IsEmpty() {
			res.ChangeSets = append(res.ChangeSets, cs)
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", cs.Operation, cs.Router, err))
		}
	})
	if err != nil {
		return nil, err
	}

	m := reconcile.NewManager(reconcile.ManagerOptions{
		Desired: func(context.Context, string) ([]*model.LogicalRouter, error) {
			return snap.ForDevice(d.ID), nil
		},
	})
	m.AddDevice(h, rec)
	if err := m.ResyncNow(ctx, d.ID); err != nil {
		return nil, err
	}
	res.Script = rec.Script()
	return res, nil
}

func printRender(res *renderResult) {
	fmt.Println(cli.Bold(res.Device))
	if renderScript {
		fmt.Print(res.Script)
		return
	}
	if len(res.ChangeSets) == 0 && len(res.Errors) == 0 {
		fmt.Println("  " + cli.Dim("no changes"))
	}
	for _, cs := range res.ChangeSets {
		fmt.Printf("  %s %s\n", cli.DotPad(cs.Operation, 26), cs.Router)
		for _, c := range cs.Changes {
			fmt.Println("    " + cli.ChangeLine(c))
		}
	}
	for _, e := range res.Errors {
		fmt.Println("  " + cli.Red("error: "+e))
	}
	fmt.Println()
}

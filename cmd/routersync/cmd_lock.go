package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/cli"
	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/registry/redisstore"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Show device lock holders",
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show which agent holds each device lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if app.cfg.Redis.Addr == "" {
			return fmt.Errorf("device locks need redis.addr")
		}
		devices, err := targetDevices()
		if err != nil {
			return err
		}
		store, err := redisstore.New(ctx, app.cfg.Redis.Addr, app.cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer store.Close()
		lock := device.NewLock(store.Client(), lockHolder(), app.cfg.Redis.LockTTL)

		type row struct {
			Device   string    `json:"device"`
			Holder   string    `json:"holder,omitempty"`
			Acquired time.Time `json:"acquired,omitempty"`
		}
		var rows []row
		for _, d := range devices {
			holder, acquired, err := lock.Holder(ctx, d.ID)
			if err != nil {
				return err
			}
			rows = append(rows, row{Device: d.ID, Holder: holder, Acquired: acquired})
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(rows)
		}
		t := cli.NewTable("DEVICE", "HOLDER", "SINCE")
		for _, r := range rows {
			if r.Holder == "" {
				t.Row(r.Device, cli.Dim("-"), "")
				continue
			}
			t.Row(r.Device, r.Holder, time.Since(r.Acquired).Round(time.Second).String())
		}
		t.Flush()
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockShowCmd)
}

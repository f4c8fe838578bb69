package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/audit"
	"github.com/newtron-network/routersync/pkg/cli"
	"github.com/newtron-network/routersync/pkg/config"
	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/reconcile"
	"github.com/newtron-network/routersync/pkg/registry"
)

var resyncExecute bool

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Run one full resync against live devices",
	Long: `Read each device's running configuration and compute the commands that
bring it in line with the snapshot, including removal of routers the
snapshot no longer has. Without -x the commands are only printed.

Examples:
  routersync resync -d asr-1
  routersync resync -d asr-1 -x`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		devices, err := targetDevices()
		if err != nil {
			return err
		}

		if !resyncExecute {
			for _, d := range devices {
				sess, err := dial(ctx, d)
				if err != nil {
					return fmt.Errorf("device %s: %w", d.ID, err)
				}
				running, err := sess.RunningConfig(ctx)
				sess.Close()
				if err != nil {
					return fmt.Errorf("device %s: %w", d.ID, err)
				}
				res, err := render(ctx, d, snap, running)
				if err != nil {
					return fmt.Errorf("device %s: %w", d.ID, err)
				}
				printRender(res)
			}
			fmt.Println(cli.Yellow("Dry run: use -x to execute"))
			return nil
		}

		reg, store, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()
		auditLog := openAudit()
		if auditLog != nil {
			defer auditLog.Close()
		}

		opts := reconcile.ManagerOptions{
			MaxRetries:   app.cfg.MaxRetries,
			RetryBackoff: app.cfg.RetryBackoff,
			Desired:      snapshotDesired,
		}
		if store != nil {
			opts.Lock = device.NewLock(store.Client(), lockHolder(), app.cfg.Redis.LockTTL)
		}

		failed := 0
		for _, d := range devices {
			if err := resyncDevice(cmd, d, reg, opts, auditLog); err != nil {
				fmt.Println(cli.Red(fmt.Sprintf("%s: %v", d.ID, err)))
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d device(s) failed", failed)
		}
		return nil
	},
}

func init() {
	resyncCmd.Flags().BoolVarP(&resyncExecute, "execute", "x", false, "Push the commands to the device")
}

func resyncDevice(cmd *cobra.Command, d config.Device, reg *registry.Registry, opts reconcile.ManagerOptions, auditLog *audit.FileLogger) error {
	ctx := cmd.Context()
	sess, err := dial(ctx, d)
	if err != nil {
		return err
	}
	defer sess.Close()

	applied, errs := 0, 0
	h, err := newHelper(d, sess, reg, changeHook(auditLog, func(cs *driver.ChangeSet, err error) {
		applied += len(cs.Changes)
		if err != nil {
			errs++
			fmt.Println(cli.Red(fmt.Sprintf("  %s %s: %v", cs.Operation, cs.Router, err)))
		}
	}))
	if err != nil {
		return err
	}

	m := reconcile.NewManager(opts)
	m.AddDevice(h, sess)
	if err := m.ResyncNow(ctx, d.ID); err != nil {
		return err
	}
	fmt.Printf("%s %d command(s) applied\n", cli.DotPad(d.ID, 20), applied)
	if errs > 0 {
		return fmt.Errorf("%d operation(s) failed", errs)
	}
	return nil
}

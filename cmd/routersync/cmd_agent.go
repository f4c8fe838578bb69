package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/reconcile"
	"github.com/newtron-network/routersync/pkg/util"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Reconcile devices continuously",
	Long: `Run one worker per configured device. Each worker starts with a full
resync against the device's running configuration and repeats it every
resync_interval. SIGHUP re-reads the snapshot and resyncs immediately.

Examples:
  routersync agent
  routersync agent -d asr-1 -f /var/lib/routersync/routers.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := loadSnapshot(); err != nil {
			return err
		}
		devices, err := targetDevices()
		if err != nil {
			return err
		}

		reg, store, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()

		opts := reconcile.ManagerOptions{
			ResyncInterval: app.cfg.ResyncInterval,
			MaxRetries:     app.cfg.MaxRetries,
			RetryBackoff:   app.cfg.RetryBackoff,
			Desired:        snapshotDesired,
		}
		if store != nil {
			opts.Lock = device.NewLock(store.Client(), lockHolder(), app.cfg.Redis.LockTTL)
		}

		auditLog := openAudit()
		if auditLog != nil {
			defer auditLog.Close()
		}

		m := reconcile.NewManager(opts)
		var sessions []device.Session
		for _, d := range devices {
			sess, err := dial(ctx, d)
			if err == nil {
				sessions = append(sessions, sess)
				var h *reconcile.Helper
				if h, err = newHelper(d, sess, reg, changeHook(auditLog, nil)); err == nil {
					m.AddDevice(h, sess)
					continue
				}
			}
			for _, s := range sessions {
				s.Close()
			}
			return fmt.Errorf("device %s: %w", d.ID, err)
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					util.Infof("SIGHUP: resyncing all devices")
					if err := m.Resync(""); err != nil {
						util.Warnf("Resync: %v", err)
					}
				}
			}
		}()

		util.Infof("Agent running for %d device(s)", len(devices))
		return m.Run(ctx)
	},
}

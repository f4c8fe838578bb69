package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/newtron-network/routersync/pkg/audit"
	"github.com/newtron-network/routersync/pkg/config"
	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/reconcile"
	"github.com/newtron-network/routersync/pkg/registry"
	"github.com/newtron-network/routersync/pkg/registry/redisstore"
	"github.com/newtron-network/routersync/pkg/util"
)

// loadSnapshot reads the desired routers.
func loadSnapshot() (*model.Snapshot, error) {
	if app.snapshotPath == "" {
		return nil, fmt.Errorf("no snapshot: set 'snapshot' in the config or use -f")
	}
	return model.LoadSnapshot(app.snapshotPath)
}

// targetDevices returns the -d device, or every configured device.
func targetDevices() ([]config.Device, error) {
	if app.deviceName != "" {
		d, ok := app.cfg.Device(app.deviceName)
		if !ok {
			return nil, fmt.Errorf("device %q is not configured", app.deviceName)
		}
		return []config.Device{d}, nil
	}
	if len(app.cfg.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}
	return app.cfg.Devices, nil
}

// openRegistry returns the shared registry: Redis-backed and restored when
// redis is configured, in memory otherwise. The Redis store is also returned
// so callers can share its client.
func openRegistry(ctx context.Context) (*registry.Registry, *redisstore.Store, error) {
	if app.cfg.Redis.Addr == "" {
		return registry.New(nil), nil, nil
	}
	store, err := redisstore.New(ctx, app.cfg.Redis.Addr, app.cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(store)
	if err := reg.Restore(ctx); err != nil {
		reg.Close()
		return nil, nil, fmt.Errorf("restoring registry: %w", err)
	}
	return reg, store, nil
}

// lockHolder identifies this process in device locks.
func lockHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("routersync@%s/%d", host, os.Getpid())
}

var (
	promptOnce sync.Once
	prompted   string
	promptErr  error
)

// password returns the SSH password for d, prompting once with --ask-pass.
func password(d config.Device) (string, error) {
	if d.SSHPass != "" || !app.askPass {
		return d.SSHPass, nil
	}
	promptOnce.Do(func() {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			promptErr = fmt.Errorf("--ask-pass needs a terminal")
			return
		}
		fmt.Fprint(os.Stderr, "SSH password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		prompted, promptErr = string(b), err
	})
	return prompted, promptErr
}

// dial opens an SSH session to d.
func dial(ctx context.Context, d config.Device) (*device.SSHSession, error) {
	pass, err := password(d)
	if err != nil {
		return nil, err
	}
	cfg := d.SSHConfig()
	cfg.Password = pass
	return device.DialSSH(ctx, cfg)
}

// newHelper builds the driver and reconcile helper for one device session.
func newHelper(d config.Device, sess device.Session, reg *registry.Registry, onChange reconcile.ChangeFunc) (*reconcile.Helper, error) {
	opts, err := app.cfg.DriverOptions()
	if err != nil {
		return nil, err
	}
	opts.Device = d.ID
	opts.Session = sess
	opts.Registry = reg
	drv, err := driver.New(d.Family, opts)
	if err != nil {
		return nil, err
	}
	return reconcile.NewHelper(drv, reg, reconcile.HelperOptions{
		Transit:  app.cfg.TransitTable(),
		OnChange: onChange,
	}), nil
}

// openAudit opens the configured audit log, or returns nil when disabled.
func openAudit() *audit.FileLogger {
	if app.cfg.Audit.Path == "" {
		return nil
	}
	l, err := audit.NewFileLogger(app.cfg.Audit.Path, app.cfg.Audit.Rotation())
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
		return nil
	}
	return l
}

// changeHook combines the audit log with an optional extra observer.
func changeHook(l *audit.FileLogger, extra reconcile.ChangeFunc) reconcile.ChangeFunc {
	return func(cs *driver.ChangeSet, err error) {
		if l != nil {
			l.Record(cs, err)
		}
		if extra != nil {
			extra(cs, err)
		}
	}
}

// snapshotDesired serves a device's routers from the snapshot, re-read on
// every call so edits are picked up by the next resync.
func snapshotDesired(ctx context.Context, dev string) ([]*model.LogicalRouter, error) {
	snap, err := loadSnapshot()
	if err != nil {
		return nil, err
	}
	return snap.ForDevice(dev), nil
}

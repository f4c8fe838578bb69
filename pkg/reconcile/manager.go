package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/model"
	"github.com/newtron-network/routersync/pkg/util"
)

// DesiredFunc returns the routers that should exist on a device.
type DesiredFunc func(ctx context.Context, device string) ([]*model.LogicalRouter, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// ResyncInterval is the period of full resyncs. Zero disables them;
	// Resync can still be requested explicitly.
	ResyncInterval time.Duration
	// MaxRetries bounds re-queues of a router after retryable errors.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles with each attempt.
	RetryBackoff time.Duration
	// Desired supplies the desired routers for a full resync. Required for
	// resync.
	Desired DesiredFunc
	// Lock, if set, is held around every batch of device work.
	Lock *device.Lock
}

// Manager runs one worker per hosting device. Each worker owns its device
// session and helper exclusively; devices are reconciled concurrently.
type Manager struct {
	opts ManagerOptions

	mu      sync.Mutex
	workers map[string]*deviceWorker
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Manager{opts: opts, workers: make(map[string]*deviceWorker)}
}

// AddDevice registers the helper and session of one device. It must be
// called before Run.
func (m *Manager) AddDevice(h *Helper, sess device.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[h.Device()] = newDeviceWorker(h, sess, &m.opts)
}

// Devices returns the managed device ids, sorted.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) worker(dev string) (*deviceWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[dev]
	if !ok {
		return nil, fmt.Errorf("%w: unknown hosting device %q", util.ErrInvalidConfig, dev)
	}
	return w, nil
}

// UpdateRouter queues a router snapshot on its hosting device. A pending
// snapshot of the same router is replaced.
func (m *Manager) UpdateRouter(r *model.LogicalRouter) error {
	w, err := m.worker(r.HostingDevice)
	if err != nil {
		return err
	}
	w.enqueue(r.ID, r, false)
	return nil
}

// DeleteRouter queues removal of a router from a device.
func (m *Manager) DeleteRouter(dev, routerID string) error {
	w, err := m.worker(dev)
	if err != nil {
		return err
	}
	w.enqueue(routerID, nil, true)
	return nil
}

// Resync requests a full resync of one device, or of all devices when dev
// is empty.
func (m *Manager) Resync(dev string) error {
	if dev != "" {
		w, err := m.worker(dev)
		if err != nil {
			return err
		}
		w.requestResync()
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		w.requestResync()
	}
	return nil
}

// ResyncNow runs one full resync of dev on the calling goroutine, then
// processes whatever the pass queued until nothing is due. Retries scheduled
// for later are dropped. It must not be used while Run is active.
func (m *Manager) ResyncNow(ctx context.Context, dev string) error {
	w, err := m.worker(dev)
	if err != nil {
		return err
	}
	if m.opts.Desired == nil {
		return fmt.Errorf("%w: resync needs a desired-state source", util.ErrInvalidConfig)
	}
	if err := w.resync(ctx); err != nil {
		return err
	}
	for it, _ := w.next(); it != nil; it, _ = w.next() {
		w.handle(ctx, it)
	}
	return ctx.Err()
}

// Run starts the workers and blocks until ctx is cancelled. Every worker
// begins with a full resync when a desired-state source is configured.
// Sessions are closed on return.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	workers := make([]*deviceWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			defer w.session.Close()
			return w.run(ctx)
		})
	}
	return g.Wait()
}

// ============================================================================
// Device worker
// ============================================================================

type workItem struct {
	routerID  string
	router    *model.LogicalRouter
	deleted   bool
	attempt   int
	notBefore time.Time
}

// urgent reports whether the item should abandon a resync in progress.
func (it *workItem) urgent() bool {
	return it.deleted || (it.router.GatewayPort == nil && !it.router.IsGlobal())
}

type deviceWorker struct {
	device  string
	helper  *Helper
	session device.Session
	opts    *ManagerOptions
	now     func() time.Time

	mu           sync.Mutex
	pending      map[string]*workItem
	order        []string
	resyncWanted bool

	resyncing atomic.Bool
	preempt   atomic.Bool
	wake      chan struct{}
}

func newDeviceWorker(h *Helper, sess device.Session, opts *ManagerOptions) *deviceWorker {
	return &deviceWorker{
		device:  h.Device(),
		helper:  h,
		session: sess,
		opts:    opts,
		now:     time.Now,
		pending: make(map[string]*workItem),
		wake:    make(chan struct{}, 1),
	}
}

func (w *deviceWorker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *deviceWorker) enqueue(id string, r *model.LogicalRouter, deleted bool) {
	it := &workItem{routerID: id, router: r, deleted: deleted}
	w.mu.Lock()
	if _, queued := w.pending[id]; !queued {
		w.order = append(w.order, id)
	}
	w.pending[id] = it
	w.mu.Unlock()

	if w.resyncing.Load() && it.urgent() {
		w.preempt.Store(true)
	}
	w.signal()
}

// requeue puts a failed item back unless a newer event for the router has
// arrived meanwhile.
func (w *deviceWorker) requeue(it *workItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, queued := w.pending[it.routerID]; queued {
		return
	}
	w.order = append(w.order, it.routerID)
	w.pending[it.routerID] = it
}

func (w *deviceWorker) requestResync() {
	w.mu.Lock()
	w.resyncWanted = true
	w.mu.Unlock()
	w.signal()
}

// next pops the first item whose retry time has passed. It also returns the
// earliest future retry time, or zero.
func (w *deviceWorker) next() (*workItem, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	var wait time.Time
	for i, id := range w.order {
		it := w.pending[id]
		if it.notBefore.After(now) {
			if wait.IsZero() || it.notBefore.Before(wait) {
				wait = it.notBefore
			}
			continue
		}
		w.order = append(w.order[:i:i], w.order[i+1:]...)
		delete(w.pending, id)
		return it, time.Time{}
	}
	return nil, wait
}

func (w *deviceWorker) takeResync() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	want := w.resyncWanted && w.opts.Desired != nil
	w.resyncWanted = false
	return want
}

func (w *deviceWorker) run(ctx context.Context) error {
	log := util.WithDevice(w.device)
	log.Infof("Worker started")

	var tick <-chan time.Time
	if w.opts.ResyncInterval > 0 {
		t := time.NewTicker(w.opts.ResyncInterval)
		defer t.Stop()
		tick = t.C
	}
	if w.opts.Desired != nil {
		w.requestResync()
	}

	for {
		wait := w.drain(ctx)

		var timer *time.Timer
		var retry <-chan time.Time
		if !wait.IsZero() {
			timer = time.NewTimer(wait.Sub(w.now()))
			retry = timer.C
		}
		select {
		case <-ctx.Done():
			log.Infof("Worker stopped")
			return nil
		case <-w.wake:
		case <-tick:
			w.requestResync()
		case <-retry:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// drain processes everything that is ready: queued router events first,
// then a requested resync. It returns the next retry time, or zero.
func (w *deviceWorker) drain(ctx context.Context) time.Time {
	for ctx.Err() == nil {
		it, wait := w.next()
		if it != nil {
			w.handle(ctx, it)
			continue
		}
		if w.takeResync() {
			_ = w.resync(ctx)
			continue
		}
		return wait
	}
	return time.Time{}
}

func (w *deviceWorker) withLock(ctx context.Context, fn func() error) error {
	if w.opts.Lock == nil {
		return fn()
	}
	if err := w.opts.Lock.Acquire(ctx, w.device); err != nil {
		return err
	}
	defer func() {
		if err := w.opts.Lock.Release(context.WithoutCancel(ctx), w.device); err != nil {
			util.WithDevice(w.device).Warnf("Releasing device lock: %v", err)
		}
	}()
	return fn()
}

func (w *deviceWorker) handle(ctx context.Context, it *workItem) {
	log := util.WithRouter(w.device, it.routerID)
	err := w.withLock(ctx, func() error {
		if it.deleted {
			return w.helper.RemoveRouter(ctx, it.routerID)
		}
		return w.helper.ProcessRouter(ctx, it.router)
	})
	if err == nil {
		log.Debugf("Reconciled")
		return
	}
	w.fail(it, err)
}

// fail re-queues a retryable failure with exponential backoff, or drops the
// item.
func (w *deviceWorker) fail(it *workItem, err error) {
	log := util.WithRouter(w.device, it.routerID)
	if !util.IsRetryable(err) {
		log.Errorf("Giving up: %v", err)
		return
	}
	for _, bad := range util.FatalParts(err) {
		log.Errorf("Malformed input: %v", bad)
	}
	if it.attempt >= w.opts.MaxRetries {
		log.Errorf("Giving up after %d retries: %v", it.attempt, err)
		return
	}
	delay := w.opts.RetryBackoff << it.attempt
	it.attempt++
	it.notBefore = w.now().Add(delay)
	log.Warnf("Retry %d/%d in %s: %v", it.attempt, w.opts.MaxRetries, delay, err)
	w.requeue(it)
}

// resync reapplies every desired router against the device's running
// configuration and removes tracked routers that are no longer desired. An
// urgent event abandons the pass; it is re-requested to run afterwards.
// Per-router failures are logged or queued for retry and do not fail the
// pass.
func (w *deviceWorker) resync(ctx context.Context) error {
	log := util.WithDevice(w.device)

	desired, err := w.opts.Desired(ctx, w.device)
	if err != nil {
		log.Errorf("Resync: loading desired state: %v", err)
		return fmt.Errorf("loading desired state: %w", err)
	}
	running, err := w.session.RunningConfig(ctx)
	if err != nil {
		log.Errorf("Resync: reading running config: %v", err)
		return fmt.Errorf("reading running config: %w", err)
	}

	w.preempt.Store(false)
	w.resyncing.Store(true)
	defer w.resyncing.Store(false)

	drv := w.helper.drv
	gen := drv.BeginResync(device.ParseRunningConfig(w.device, running))
	defer drv.EndResync(gen)

	log.Infof("Resync %d: %d routers", gen, len(desired))
	err = w.withLock(ctx, func() error {
		want := make(map[string]bool, len(desired))
		for _, r := range desired {
			want[r.ID] = true
		}
		for _, r := range desired {
			if w.preempt.Load() {
				return errPreempted
			}
			if err := w.helper.ReapplyRouter(ctx, r); err != nil {
				if util.IsRetryable(err) {
					w.fail(&workItem{routerID: r.ID, router: r}, err)
				} else {
					util.WithRouter(w.device, r.ID).Errorf("Resync: %v", err)
				}
			}
		}
		for _, id := range w.helper.Tracked() {
			if want[id] {
				continue
			}
			if w.preempt.Load() {
				return errPreempted
			}
			if err := w.helper.RemoveRouter(ctx, id); err != nil {
				w.fail(&workItem{routerID: id, deleted: true}, err)
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errPreempted):
		log.Infof("Resync %d abandoned for urgent event, re-queued", gen)
		w.requestResync()
		return nil
	case err != nil:
		log.Errorf("Resync %d: %v", gen, err)
		return err
	}
	log.Infof("Resync %d complete", gen)
	return nil
}

var errPreempted = errors.New("resync preempted")

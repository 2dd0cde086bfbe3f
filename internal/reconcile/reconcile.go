// Package reconcile propagates a backend's local archive to the network
// tier in the background.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/event"
	"github.com/traktion/antftp/internal/pointer"
	"github.com/traktion/antftp/internal/storage"
)

// DefaultPeriod is the interval between ticks when Config.Period is zero.
const DefaultPeriod = 60 * time.Second

// Config configures a Reconciler.
type Config struct {
	Resolver  *pointer.Resolver
	Publisher *pointer.Publisher
	Service   archive.Service
	Events    chan<- event.Event
	Logger    *slog.Logger
	Period    time.Duration
	// Target is the tier pushed to. Zero means Network.
	Target archive.StoreTarget
	// Immediate runs the first tick at start instead of after one period.
	Immediate bool
	// OnSync, if set, is called with each address once it is fully synced.
	OnSync func(archive.Address)
}

// Reconciler pushes the current address to the network tier and points the
// pointer there whenever the address has moved since the last success.
type Reconciler struct {
	resolver  *pointer.Resolver
	publisher *pointer.Publisher
	service   archive.Service
	events    chan<- event.Event
	logger    *slog.Logger
	period    time.Duration
	target    archive.StoreTarget
	immediate bool
	onSync    func(archive.Address)

	tickMu sync.Mutex // serializes ticks

	mu     sync.Mutex
	synced archive.Address
	at     time.Time
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Resolver == nil || cfg.Publisher == nil || cfg.Service == nil {
		return nil, errors.New("reconcile: resolver, publisher and service are required")
	}
	if cfg.Period < 0 {
		return nil, fmt.Errorf("reconcile: negative period %s", cfg.Period)
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Target == 0 {
		cfg.Target = archive.Network
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		resolver:  cfg.Resolver,
		publisher: cfg.Publisher,
		service:   cfg.Service,
		events:    cfg.Events,
		logger:    logger.With("component", "reconcile"),
		period:    cfg.Period,
		target:    cfg.Target,
		immediate: cfg.Immediate,
		onSync:    cfg.OnSync,
	}, nil
}

// Run ticks every period until ctx is cancelled. Tick failures are logged
// and retried on the next tick; Run itself only returns on cancellation.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started", "period", r.period, "target", r.target)
	defer r.logger.Info("reconciler stopped")

	if r.immediate {
		_ = r.Tick(ctx)
	}

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation. The recorded address only advances when
// both the push and the pointer update succeed, so a partial failure is
// redone in full on the next tick.
func (r *Reconciler) Tick(ctx context.Context) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	addr, err := r.resolver.Current(ctx)
	if err != nil {
		return r.fail("resolve", "", err)
	}

	if addr == r.LastSynced() {
		r.logger.Debug("archive unchanged", "address", addr)
		event.Emit(r.events, event.Event{Type: event.SyncSkipped, Op: "sync", Address: string(addr)})
		return nil
	}

	if _, err := r.service.Push(ctx, addr, r.target); err != nil {
		return r.fail("push", addr, err)
	}
	if err := r.publisher.Publish(ctx, addr, r.target); err != nil {
		return r.fail("publish", addr, err)
	}

	r.mu.Lock()
	r.synced = addr
	r.at = time.Now()
	r.mu.Unlock()

	r.logger.Info("archive synced", "address", addr, "target", r.target)
	if r.onSync != nil {
		r.onSync(addr)
	}
	event.Emit(r.events, event.Event{Type: event.SyncPushed, Op: "sync", Address: string(addr)})
	return nil
}

// LastSynced returns the last address that was fully synced, or the empty
// Address before the first success.
func (r *Reconciler) LastSynced() archive.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

// SyncedAt returns when LastSynced was recorded.
func (r *Reconciler) SyncedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.at
}

func (r *Reconciler) fail(step string, addr archive.Address, err error) error {
	serr := &storage.Error{Kind: storage.TransientRemote, Op: "sync " + step, Err: err}
	r.logger.Warn("sync failed", "step", step, "address", addr, "error", err)
	event.Emit(r.events, event.Event{Type: event.SyncFailed, Op: "sync", Address: string(addr), Error: serr})
	return serr
}

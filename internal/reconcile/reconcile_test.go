package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/event"
	"github.com/traktion/antftp/internal/pointer"
	"github.com/traktion/antftp/internal/reconcile"
	"github.com/traktion/antftp/internal/storage"
)

type pushService struct {
	archive.Service // unused verbs panic

	mu     sync.Mutex
	pushed []archive.Address
	fail   error
}

func (p *pushService) Push(_ context.Context, addr archive.Address, target archive.StoreTarget) (archive.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if target != archive.Network {
		return "", errors.New("unexpected target " + target.String())
	}
	p.pushed = append(p.pushed, addr)
	if p.fail != nil {
		return "", p.fail
	}
	return addr, nil
}

func (p *pushService) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *pushService) Pushed() []archive.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]archive.Address(nil), p.pushed...)
}

type pointers struct {
	mu      sync.Mutex
	content archive.Address
	fail    error
	updates int
}

func (p *pointers) Get(context.Context, string) (*pointer.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &pointer.Record{Name: "home", Content: p.content}, nil
}

func (p *pointers) Update(_ context.Context, _ string, rec pointer.Record, _ archive.StoreTarget) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	if p.fail != nil {
		return p.fail
	}
	p.content = rec.Content
	return nil
}

func (p *pointers) set(addr archive.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = addr
}

func (p *pointers) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func newReconciler(t *testing.T, svc archive.Service, ptrs pointer.Service, events chan<- event.Event) *reconcile.Reconciler {
	t.Helper()
	mode := archive.PointerBacked{Name: "home", Cached: "A"}
	cell, err := archive.NewCell(mode.Seed())
	require.NoError(t, err)

	r, err := reconcile.New(reconcile.Config{
		Resolver:  pointer.NewResolver(mode, cell, ptrs, nil),
		Publisher: pointer.NewPublisher(mode, ptrs, nil),
		Service:   svc,
		Events:    events,
		Period:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := reconcile.New(reconcile.Config{})
	require.Error(t, err)
}

func TestTickIdempotent(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	ptrs := &pointers{content: "A"}
	events := make(chan event.Event, 8)
	r := newReconciler(t, svc, ptrs, events)
	ctx := context.Background()

	assert.Empty(t, r.LastSynced())

	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, archive.Address("A"), r.LastSynced())
	assert.False(t, r.SyncedAt().IsZero())

	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, []archive.Address{"A"}, svc.Pushed())
	assert.Equal(t, 1, ptrs.updates)

	assert.Equal(t, event.SyncPushed, (<-events).Type)
	assert.Equal(t, event.SyncSkipped, (<-events).Type)
}

func TestTickFollowsNewAddress(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	ptrs := &pointers{content: "A"}
	r := newReconciler(t, svc, ptrs, nil)
	ctx := context.Background()

	require.NoError(t, r.Tick(ctx))
	ptrs.set("B")
	require.NoError(t, r.Tick(ctx))

	assert.Equal(t, []archive.Address{"A", "B"}, svc.Pushed())
	assert.Equal(t, archive.Address("B"), r.LastSynced())
}

func TestTickRetriesAfterPushFailure(t *testing.T) {
	t.Parallel()

	svc := &pushService{fail: errors.New("network unreachable")}
	ptrs := &pointers{content: "A"}
	events := make(chan event.Event, 8)
	r := newReconciler(t, svc, ptrs, events)
	ctx := context.Background()

	err := r.Tick(ctx)
	require.ErrorIs(t, err, storage.ErrTransientRemote)
	assert.Empty(t, r.LastSynced())
	assert.Zero(t, ptrs.updates)
	assert.Equal(t, event.SyncFailed, (<-events).Type)

	svc.setFail(nil)
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, archive.Address("A"), r.LastSynced())
	assert.Equal(t, []archive.Address{"A", "A"}, svc.Pushed())
}

func TestTickCallsOnSyncOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	svc := &pushService{fail: errors.New("network unreachable")}
	ptrs := &pointers{content: "A"}
	mode := archive.PointerBacked{Name: "home", Cached: "A"}
	cell, err := archive.NewCell(mode.Seed())
	require.NoError(t, err)

	var synced []archive.Address
	r, err := reconcile.New(reconcile.Config{
		Resolver:  pointer.NewResolver(mode, cell, ptrs, nil),
		Publisher: pointer.NewPublisher(mode, ptrs, nil),
		Service:   svc,
		OnSync:    func(addr archive.Address) { synced = append(synced, addr) },
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, r.Tick(ctx))
	assert.Empty(t, synced)

	svc.setFail(nil)
	require.NoError(t, r.Tick(ctx))
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, []archive.Address{"A"}, synced)
}

func TestTickRetriesAfterPublishFailure(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	ptrs := &pointers{content: "A", fail: errors.New("pointer store down")}
	r := newReconciler(t, svc, ptrs, nil)
	ctx := context.Background()

	err := r.Tick(ctx)
	require.ErrorIs(t, err, storage.ErrTransientRemote)
	require.ErrorIs(t, err, pointer.ErrPublish)
	assert.Empty(t, r.LastSynced())

	// Push already succeeded once; the whole sequence is redone.
	ptrs.setFail(nil)
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, []archive.Address{"A", "A"}, svc.Pushed())
	assert.Equal(t, archive.Address("A"), r.LastSynced())
}

type failingPointers struct{ pointers }

func (*failingPointers) Get(context.Context, string) (*pointer.Record, error) {
	return nil, errors.New("lookup timed out")
}

func TestTickResolveFailure(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	r := newReconciler(t, svc, &failingPointers{}, nil)

	err := r.Tick(context.Background())
	require.ErrorIs(t, err, storage.ErrTransientRemote)
	require.ErrorIs(t, err, pointer.ErrNotAvailable)
	assert.Empty(t, svc.Pushed())
}

func TestRunUntilCancelled(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	ptrs := &pointers{content: "A"}
	r := newReconciler(t, svc, ptrs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.LastSynced() == "A"
	}, 2*time.Second, 5*time.Millisecond)

	ptrs.set("B")
	require.Eventually(t, func() bool {
		return r.LastSynced() == "B"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []archive.Address{"A", "B"}, svc.Pushed())
}

func TestRunImmediate(t *testing.T) {
	t.Parallel()

	svc := &pushService{}
	ptrs := &pointers{content: "A"}
	mode := archive.PointerBacked{Name: "home", Cached: "A"}
	cell, err := archive.NewCell("A")
	require.NoError(t, err)

	r, err := reconcile.New(reconcile.Config{
		Resolver:  pointer.NewResolver(mode, cell, ptrs, nil),
		Publisher: pointer.NewPublisher(mode, ptrs, nil),
		Service:   svc,
		Period:    time.Hour,
		Immediate: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.LastSynced() == "A"
	}, 2*time.Second, 5*time.Millisecond)
}

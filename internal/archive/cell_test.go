package archive_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traktion/antftp/internal/archive"
)

func TestNewCell_RejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := archive.NewCell("")
	require.ErrorIs(t, err, archive.ErrEmptyAddress)
}

func TestCell_CommitReplacesAddress(t *testing.T) {
	t.Parallel()
	c, err := archive.NewCell("A")
	require.NoError(t, err)

	g := c.Begin()
	assert.Equal(t, archive.Address("A"), g.Address())
	require.NoError(t, g.Commit("B"))
	g.Release()

	assert.Equal(t, archive.Address("B"), c.Snapshot())
}

func TestCell_CommitEmptyKeepsAddress(t *testing.T) {
	t.Parallel()
	c, err := archive.NewCell("A")
	require.NoError(t, err)

	g := c.Begin()
	require.ErrorIs(t, g.Commit(""), archive.ErrEmptyAddress)
	g.Release()

	assert.Equal(t, archive.Address("A"), c.Snapshot())
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	c, err := archive.NewCell("A")
	require.NoError(t, err)

	g := c.Begin()
	g.Release()
	g.Release()
	require.ErrorIs(t, g.Commit("B"), archive.ErrGuardReleased)

	// The lock must be free again.
	g2 := c.Begin()
	require.NoError(t, g2.Commit("C"))
	g2.Release()
	assert.Equal(t, archive.Address("C"), c.Snapshot())
}

func TestGuard_AddressAfterReleaseIsStable(t *testing.T) {
	t.Parallel()
	c, err := archive.NewCell("A")
	require.NoError(t, err)

	g := c.Begin()
	require.NoError(t, g.Commit("B"))
	g.Release()

	// A later writer moves the cell on while the stale guard is still read.
	done := make(chan struct{})
	go func() {
		defer close(done)
		g2 := c.Begin()
		defer g2.Release()
		assert.NoError(t, g2.Commit("C"))
	}()
	assert.Equal(t, archive.Address("B"), g.Address())
	<-done
	assert.Equal(t, archive.Address("B"), g.Address())
	assert.Equal(t, archive.Address("C"), c.Snapshot())
}

func TestCell_ConcurrentCommitsNeverTear(t *testing.T) {
	t.Parallel()
	c, err := archive.NewCell("seed")
	require.NoError(t, err)

	const writers = 16
	const rounds = 200

	written := make(map[archive.Address]struct{})
	var mu sync.Mutex
	written["seed"] = struct{}{}

	var wg sync.WaitGroup
	for w := range writers {
		wg.Go(func() {
			for r := range rounds {
				addr := archive.Address(fmt.Sprintf("w%d-r%d", w, r))
				mu.Lock()
				written[addr] = struct{}{}
				mu.Unlock()

				g := c.Begin()
				_ = g.Commit(addr)
				g.Release()
			}
		})
	}
	for range writers {
		wg.Go(func() {
			for range rounds {
				got := c.Snapshot()
				assert.NotEmpty(t, got)
			}
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	_, ok := written[c.Snapshot()]
	assert.True(t, ok, "final address %q was never committed", c.Snapshot())
}

package archive

import (
	"errors"
	"sync"
)

var (
	// ErrEmptyAddress is returned when a cell would be left holding no address.
	ErrEmptyAddress = errors.New("archive address is empty")
	// ErrGuardReleased is returned by Commit on a guard that was already released.
	ErrGuardReleased = errors.New("cell guard already released")
)

// Cell holds the current archive address of one backend. Readers share
// access through Snapshot; writers take the exclusive section with Begin.
// The address is only ever replaced as a whole value.
type Cell struct {
	addr Address
	mu   sync.RWMutex
}

// NewCell creates a cell seeded with addr, which must not be empty.
func NewCell(addr Address) (*Cell, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}
	return &Cell{addr: addr}, nil
}

// Snapshot returns the current address under shared access.
func (c *Cell) Snapshot() Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Begin acquires exclusive access. The returned guard must be released on
// every path, normally with defer.
func (c *Cell) Begin() *Guard {
	c.mu.Lock()
	return &Guard{cell: c, addr: c.addr}
}

// Guard is the exclusive section of a Cell.
type Guard struct {
	cell     *Cell
	addr     Address
	released bool
}

// Address returns the address held by the guard: the one seen at Begin, or
// the last one committed through it. It never touches the cell after
// Release.
func (g *Guard) Address() Address {
	return g.addr
}

// Commit replaces the cell's address.
func (g *Guard) Commit(addr Address) error {
	if g.released {
		return ErrGuardReleased
	}
	if addr == "" {
		return ErrEmptyAddress
	}
	g.cell.addr = addr
	g.addr = addr
	return nil
}

// Release gives up exclusive access. It is safe to call more than once.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.cell.mu.Unlock()
}

package archive

// Mode selects how a backend locates its archive. It is either Direct,
// pinned to one seed address, or PointerBacked, following a named pointer
// that is re-resolved before each operation.
type Mode interface {
	// Seed is the address a cell starts from before any resolution.
	Seed() Address
	isMode()
}

// Direct pins a backend to a fixed seed address. The address still moves
// forward as the backend mutates the archive, but nothing outside the
// process is consulted.
type Direct struct {
	Address Address
}

func (d Direct) Seed() Address { return d.Address }
func (Direct) isMode()         {}

// PointerBacked follows the pointer Name. Cached is the address used until
// the first successful resolution.
type PointerBacked struct {
	Name   string
	Cached Address
}

func (p PointerBacked) Seed() Address { return p.Cached }
func (PointerBacked) isMode()         {}

// NewMode returns PointerBacked when pointer is non-empty and Direct
// otherwise.
//
//nolint:ireturn // sum type
func NewMode(address Address, pointer string) Mode {
	if pointer != "" {
		return PointerBacked{Name: pointer, Cached: address}
	}
	return Direct{Address: address}
}

// PointerName returns the pointer name for PointerBacked modes.
func PointerName(m Mode) (string, bool) {
	p, ok := m.(PointerBacked)
	if !ok {
		return "", false
	}
	return p.Name, true
}

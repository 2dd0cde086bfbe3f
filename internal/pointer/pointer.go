// Package pointer resolves and publishes mutable names over the immutable
// archive store.
//
// The archive store is content addressed: every change yields a new
// address. A pointer is a stable name that maps to the latest of those
// addresses, so clients can follow one name while the archive underneath
// keeps moving. Resolver reads a pointer into a backend's address cell and
// Publisher writes a new address back under the pointer's name.
package pointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/traktion/antftp/internal/archive"
)

var (
	// ErrNotAvailable is matched by resolution failures: the lookup failed,
	// the pointer does not exist, or it points nowhere.
	ErrNotAvailable = errors.New("pointer not available")
	// ErrPublish is matched by publish failures.
	ErrPublish = errors.New("pointer publish failed")
)

// Record is a pointer as stored by the pointer service.
type Record struct {
	Name    string
	Content archive.Address
	Counter uint64
	Cost    string
}

// Service is the remote pointer store.
type Service interface {
	// Get returns the record for name, or nil when no such pointer exists.
	Get(ctx context.Context, name string) (*Record, error)

	// Update points name at rec.Content on target.
	Update(ctx context.Context, name string, rec Record, target archive.StoreTarget) error
}

// Error describes a failed resolve or publish for one pointer.
type Error struct {
	Err     error
	Op      string // "resolve" or "publish"
	Name    string
	Address archive.Address
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s pointer %q to %s: %v", e.Op, e.Name, e.Address, e.Err)
	}
	return fmt.Sprintf("%s pointer %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNotAvailable for resolve failures and ErrPublish for
// publish failures.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotAvailable:
		return e.Op == "resolve"
	case ErrPublish:
		return e.Op == "publish"
	}
	return false
}

package archive

import (
	"fmt"
	"strings"
	"time"
)

// Address identifies an immutable snapshot of a file tree in the archive
// store. Every successful mutation produces a new Address; an existing
// Address never changes what it refers to.
type Address string

func (a Address) String() string { return string(a) }

// StoreTarget selects the replica tier a remote call operates against.
type StoreTarget int

const (
	FastLocal StoreTarget = iota + 1
	DurableLocal
	Network
)

var targetNames = [...]string{
	FastLocal:    "memory",
	DurableLocal: "disk",
	Network:      "network",
}

func (t StoreTarget) String() string {
	if t.Valid() {
		return targetNames[t]
	}
	return "unknown"
}

// Valid reports whether t is one of the defined tiers.
func (t StoreTarget) Valid() bool {
	return t > 0 && int(t) < len(targetNames)
}

// ParseStoreTarget maps a tier name to a StoreTarget. Names are matched
// case-insensitively; "fast-local" and "durable-local" are accepted as
// aliases for "memory" and "disk".
func ParseStoreTarget(s string) (StoreTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "fast-local":
		return FastLocal, nil
	case "disk", "durable-local":
		return DurableLocal, nil
	case "network":
		return Network, nil
	default:
		return 0, fmt.Errorf("unknown store target %q (use memory, disk or network)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t StoreTarget) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid store target %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *StoreTarget) UnmarshalText(b []byte) error {
	v, err := ParseStoreTarget(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// KindDirectory is the item kind the archive service reports for directories.
const KindDirectory = "directory"

// Item is one directory entry returned by the archive service.
type Item struct {
	Modified time.Time
	Name     string
	Kind     string
	Size     uint64
}

// IsDir reports whether the service classified the item as a directory.
// Any kind other than "directory" (in any case) is a file.
func (i Item) IsDir() bool {
	return strings.EqualFold(i.Kind, KindDirectory)
}

// File is one file payload sent to the archive service on update.
type File struct {
	Name    string
	Content []byte
}

// GetResult is the archive service's answer to a read at some path.
// Content is nil when the path does not name a file.
type GetResult struct {
	Address Address
	Items   []Item
	Content []byte
}

// HasContent reports whether the response carried a file payload.
func (r *GetResult) HasContent() bool {
	return r != nil && r.Content != nil
}

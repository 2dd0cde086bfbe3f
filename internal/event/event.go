package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	OpCompleted Type = iota + 1
	OpFailed
	AddressCommitted
	PointerPublished
	PublishFailed
	SyncSkipped
	SyncPushed
	SyncFailed
)

var typeNames = [...]string{
	OpCompleted:      "OpCompleted",
	OpFailed:         "OpFailed",
	AddressCommitted: "AddressCommitted",
	PointerPublished: "PointerPublished",
	PublishFailed:    "PublishFailed",
	SyncSkipped:      "SyncSkipped",
	SyncPushed:       "SyncPushed",
	SyncFailed:       "SyncFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single notification from the storage backend or the reconciler.
type Event struct {
	Timestamp time.Time
	Error     error
	Op        string // backend verb, "resolve" or "sync"
	Path      string
	Address   string // address committed, published or pushed
	Size      int64  // bytes moved by get/put
	Type      Type
}

// Emit sends ev on ch without blocking and reports whether it was
// delivered. A nil channel or a full buffer drops the event; emitters hold
// the address cell's exclusive section and must never stall on a slow
// consumer.
func Emit(ch chan<- Event, ev Event) bool {
	if ch == nil {
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

package storage

import (
	"errors"
	"fmt"
)

// Kind classifies backend failures for the file-transfer host.
type Kind int

const (
	// NotAvailable: the remote lookup or mutation failed, or the path has no
	// content.
	NotAvailable Kind = iota + 1
	// Unimplemented: the verb or argument combination is not supported.
	Unimplemented
	// LocalIO: the upload stream could not be read.
	LocalIO
	// TransientRemote: a background remote failure that is retried later.
	TransientRemote
)

var (
	ErrNotAvailable    = errors.New("not available")
	ErrUnimplemented   = errors.New("not implemented")
	ErrLocalIO         = errors.New("local i/o error")
	ErrTransientRemote = errors.New("transient remote error")
)

func (k Kind) sentinel() error {
	switch k {
	case NotAvailable:
		return ErrNotAvailable
	case Unimplemented:
		return ErrUnimplemented
	case LocalIO:
		return ErrLocalIO
	case TransientRemote:
		return ErrTransientRemote
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every Backend verb.
type Error struct {
	Err  error
	Op   string
	Path string
	Kind Kind
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

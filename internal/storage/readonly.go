package storage

import (
	"context"
	"errors"
	"io"
)

var errReadOnly = errors.New("backend is read-only")

type readOnly struct {
	Backend
}

// ReadOnly wraps b so that every mutating verb fails with Unimplemented.
// Read verbs are delegated unchanged.
func ReadOnly(b Backend) Backend {
	return readOnly{Backend: b}
}

func (readOnly) Put(_ context.Context, _ User, _ io.Reader, path string, _ uint64) (int64, error) {
	return 0, newError(Unimplemented, "put", path, errReadOnly)
}

func (readOnly) Del(_ context.Context, _ User, path string) error {
	return newError(Unimplemented, "del", path, errReadOnly)
}

func (readOnly) Rmd(_ context.Context, _ User, path string) error {
	return newError(Unimplemented, "rmd", path, errReadOnly)
}

func (readOnly) Mkd(_ context.Context, _ User, path string) error {
	return newError(Unimplemented, "mkd", path, errReadOnly)
}

func (readOnly) Rename(_ context.Context, _ User, from, _ string) error {
	return newError(Unimplemented, "rename", from, errReadOnly)
}

// Package storage adapts the archive store to the verbs a file-transfer
// host expects.
package storage

import (
	"bytes"
	"context"
	"io"
	"time"
)

// User identifies the session a verb runs for. It is used for logging only.
type User struct {
	Name       string
	RemoteAddr string
}

func (u User) String() string {
	if u.Name == "" {
		return "anonymous"
	}
	return u.Name
}

// Metadata describes a single path.
type Metadata struct {
	Modified time.Time
	Len      uint64
	Dir      bool
}

// FileInfo is one entry of a directory listing.
type FileInfo struct {
	Modified time.Time
	Name     string
	Size     uint64
	Dir      bool
}

// Content is a readable file body. It supports random access so hosts can
// serve ranged reads without buffering again.
type Content struct {
	*bytes.Reader
}

// NewContent wraps b.
func NewContent(b []byte) *Content {
	return &Content{Reader: bytes.NewReader(b)}
}

// Close is a no-op; it lets Content be used as an io.ReadCloser.
func (c *Content) Close() error { return nil }

// Backend is the storage surface a file-transfer host drives. All errors
// are *Error values.
type Backend interface {
	Metadata(ctx context.Context, user User, path string) (Metadata, error)
	List(ctx context.Context, user User, path string) ([]FileInfo, error)
	Get(ctx context.Context, user User, path string, startPos uint64) (*Content, error)
	Put(ctx context.Context, user User, r io.Reader, path string, startPos uint64) (int64, error)
	Del(ctx context.Context, user User, path string) error
	Rmd(ctx context.Context, user User, path string) error
	Mkd(ctx context.Context, user User, path string) error
	Rename(ctx context.Context, user User, from, to string) error
	Cwd(ctx context.Context, user User, path string) error
}

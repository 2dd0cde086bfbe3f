package sftpd_test

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/traktion/antftp/internal/storage"
)

// memBackend is an in-memory storage.Backend that records each verb.
type memBackend struct {
	files map[string][]byte
	dirs  map[string]bool
	calls []string
	users []string
	mu    sync.Mutex
}

func newMemBackend() *memBackend {
	return &memBackend{
		files: map[string][]byte{"/readme.txt": []byte("hello world")},
		dirs:  map[string]bool{"/": true, "/docs": true},
	}
}

func (m *memBackend) record(op string, user storage.User, p string) {
	m.calls = append(m.calls, op+" "+p)
	m.users = append(m.users, user.String())
}

func (m *memBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memBackend) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users...)
}

func (m *memBackend) File(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[p]
	return b, ok
}

func notAvailable(op, p string) error {
	return &storage.Error{Kind: storage.NotAvailable, Op: op, Path: p, Err: errors.New("no such path")}
}

func (m *memBackend) Metadata(_ context.Context, user storage.User, p string) (storage.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("metadata", user, p)
	if m.dirs[p] {
		return storage.Metadata{Dir: true, Modified: time.Now()}, nil
	}
	if b, ok := m.files[p]; ok {
		return storage.Metadata{Len: uint64(len(b)), Modified: time.Now()}, nil
	}
	return storage.Metadata{}, notAvailable("metadata", p)
}

func (m *memBackend) List(_ context.Context, user storage.User, p string) ([]storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list", user, p)
	if !m.dirs[p] {
		return nil, notAvailable("list", p)
	}
	var out []storage.FileInfo
	for name, b := range m.files {
		if path.Dir(name) == p {
			out = append(out, storage.FileInfo{Name: path.Base(name), Size: uint64(len(b))})
		}
	}
	for name := range m.dirs {
		if name != "/" && path.Dir(name) == p {
			out = append(out, storage.FileInfo{Name: path.Base(name), Dir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memBackend) Get(_ context.Context, user storage.User, p string, startPos uint64) (*storage.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get", user, p)
	b, ok := m.files[p]
	if !ok {
		return nil, notAvailable("get", p)
	}
	return storage.NewContent(b[startPos:]), nil
}

func (m *memBackend) Put(_ context.Context, user storage.User, r io.Reader, p string, _ uint64) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("put", user, p)
	m.files[p] = b
	return int64(len(b)), nil
}

func (m *memBackend) Del(_ context.Context, user storage.User, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("del", user, p)
	delete(m.files, p)
	return nil
}

func (m *memBackend) Rmd(_ context.Context, user storage.User, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("rmd", user, p)
	for name := range m.files {
		if strings.HasPrefix(name, p+"/") {
			delete(m.files, name)
		}
	}
	delete(m.dirs, p)
	return nil
}

func (m *memBackend) Mkd(_ context.Context, user storage.User, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("mkd", user, p)
	m.dirs[p] = true
	return nil
}

func (m *memBackend) Rename(_ context.Context, user storage.User, from, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("rename", user, from)
	return &storage.Error{Kind: storage.Unimplemented, Op: "rename", Path: from, Err: errors.New("rename")}
}

func (m *memBackend) Cwd(_ context.Context, user storage.User, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("cwd", user, p)
	if !m.dirs[p] {
		return notAvailable("cwd", p)
	}
	return nil
}

package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/pointer"
)

type call struct {
	op     string
	addr   archive.Address
	path   string
	files  []archive.File
	target archive.StoreTarget
}

// scriptedService answers like a small fixed archive: the root lists one
// file and one directory, /file1.txt reads "hello world", and mutations
// derive the new address from the base.
type scriptedService struct {
	mu        sync.Mutex
	calls     []call
	getErr    error
	updateErr error
	noAddress bool
}

func (s *scriptedService) record(c call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *scriptedService) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func (s *scriptedService) Get(_ context.Context, addr archive.Address, path string, target archive.StoreTarget) (*archive.GetResult, error) {
	s.record(call{op: "get", addr: addr, path: path, target: target})
	if s.getErr != nil {
		return nil, s.getErr
	}
	switch path {
	case "", "/":
		return &archive.GetResult{Address: addr, Items: []archive.Item{
			{Name: "file1.txt", Size: 11, Kind: "file"},
			{Name: "dir", Kind: "DIRECTORY"},
		}}, nil
	case "/file1.txt":
		return &archive.GetResult{Address: addr, Content: []byte("hello world")}, nil
	}
	return &archive.GetResult{Address: addr}, nil
}

func (s *scriptedService) Update(_ context.Context, addr archive.Address, files []archive.File, path string, target archive.StoreTarget) (archive.Address, error) {
	s.record(call{op: "update", addr: addr, path: path, files: files, target: target})
	if s.updateErr != nil {
		return "", s.updateErr
	}
	if s.noAddress {
		return "", nil
	}
	return addr + "_updated", nil
}

func (s *scriptedService) Truncate(_ context.Context, addr archive.Address, path string, target archive.StoreTarget) (archive.Address, error) {
	s.record(call{op: "truncate", addr: addr, path: path, target: target})
	if s.updateErr != nil {
		return "", s.updateErr
	}
	if s.noAddress {
		return "", nil
	}
	return addr + "_truncated", nil
}

func (s *scriptedService) Push(_ context.Context, addr archive.Address, target archive.StoreTarget) (archive.Address, error) {
	s.record(call{op: "push", addr: addr, target: target})
	return addr, nil
}

// memService keeps every snapshot in memory so writes can be read back.
type memService struct {
	mu        sync.Mutex
	snapshots map[archive.Address]map[string][]byte
	seq       int
}

func newMemService(seed archive.Address) *memService {
	return &memService{snapshots: map[archive.Address]map[string][]byte{seed: {}}}
}

func (m *memService) Get(_ context.Context, addr archive.Address, path string, _ archive.StoreTarget) (*archive.GetResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[addr]
	if !ok {
		return nil, errors.New("unknown address " + string(addr))
	}
	if b, ok := snap[path]; ok {
		return &archive.GetResult{Address: addr, Content: b}, nil
	}
	dir := strings.TrimSuffix(path, "/") + "/"
	var names []string
	for p := range snap {
		if rest, ok := strings.CutPrefix(p, dir); ok && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	res := &archive.GetResult{Address: addr}
	for _, n := range names {
		res.Items = append(res.Items, archive.Item{Name: n, Size: uint64(len(snap[dir+n])), Kind: "file"})
	}
	return res, nil
}

func (m *memService) next(addr archive.Address, mutate func(map[string][]byte)) (archive.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.snapshots[addr]
	if !ok {
		return "", errors.New("unknown address " + string(addr))
	}
	snap := make(map[string][]byte, len(base)+1)
	for k, v := range base {
		snap[k] = v
	}
	mutate(snap)
	m.seq++
	id := archive.Address(fmt.Sprintf("snap-%d", m.seq))
	m.snapshots[id] = snap
	return id, nil
}

func (m *memService) Update(_ context.Context, addr archive.Address, files []archive.File, path string, _ archive.StoreTarget) (archive.Address, error) {
	return m.next(addr, func(snap map[string][]byte) {
		for _, f := range files {
			snap[path] = append([]byte(nil), f.Content...)
		}
	})
}

func (m *memService) Truncate(_ context.Context, addr archive.Address, path string, _ archive.StoreTarget) (archive.Address, error) {
	return m.next(addr, func(snap map[string][]byte) { delete(snap, path) })
}

func (m *memService) Push(_ context.Context, addr archive.Address, _ archive.StoreTarget) (archive.Address, error) {
	return addr, nil
}

type pointerService struct {
	mu        sync.Mutex
	records   map[string]pointer.Record
	updateErr error
	updates   []pointer.Record
	inflight  *atomic.Int32
	overlap   *atomic.Bool
}

func newPointerService() *pointerService {
	return &pointerService{records: make(map[string]pointer.Record)}
}

func (p *pointerService) set(name string, addr archive.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[name] = pointer.Record{Name: name, Content: addr}
}

func (p *pointerService) Get(_ context.Context, name string) (*pointer.Record, error) {
	if p.inflight != nil {
		if p.inflight.Add(1) > 1 {
			p.overlap.Store(true)
		}
		defer p.inflight.Add(-1)
		time.Sleep(50 * time.Microsecond)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[name]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (p *pointerService) Update(_ context.Context, name string, rec pointer.Record, _ archive.StoreTarget) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, rec)
	if p.updateErr != nil {
		return p.updateErr
	}
	p.records[name] = rec
	return nil
}

func (p *pointerService) Updates() []pointer.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pointer.Record(nil), p.updates...)
}

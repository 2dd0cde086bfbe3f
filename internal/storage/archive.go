package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	pathpkg "path"
	"time"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/event"
	"github.com/traktion/antftp/internal/pointer"
)

var (
	errNoContent    = errors.New("path has no content")
	errNoResponse   = errors.New("empty response")
	errTooLarge     = errors.New("upload exceeds size limit")
	errPartialWrite = errors.New("resumed uploads are not supported")
	errRename       = errors.New("rename is not supported")
)

// Config configures an Archive backend.
type Config struct {
	// Mode selects a fixed address or a pointer to follow.
	Mode archive.Mode
	// Service is the remote archive store.
	Service archive.Service
	// Pointers is the remote pointer store. Required for PointerBacked modes.
	Pointers pointer.Service
	// Events receives a notification per verb and per address change.
	// Sends never block; nil disables events.
	Events chan<- event.Event
	Logger *slog.Logger
	// Target is the store tier mutations and reads are addressed to.
	Target archive.StoreTarget
	// MaxUploadSize bounds a single Put. Zero means unbounded.
	MaxUploadSize int64
	// OnCommit, if set, is called with every committed address before the
	// mutation returns. Calls are serialized by the cell and must not
	// block for long.
	OnCommit func(archive.Address)
}

// Archive is a Backend over one archive address. The address lives in a
// Cell shared with the backend's resolver: reads take a snapshot, mutations
// hold the cell exclusively from reading the base address through
// publishing the new one.
type Archive struct {
	service   archive.Service
	resolver  *pointer.Resolver
	publisher *pointer.Publisher
	cell      *archive.Cell
	events    chan<- event.Event
	logger    *slog.Logger
	onCommit  func(archive.Address)
	target    archive.StoreTarget
	maxUpload int64
}

var _ Backend = (*Archive)(nil)

// New creates an Archive backend seeded from cfg.Mode.
func New(cfg Config) (*Archive, error) {
	if cfg.Mode == nil {
		return nil, errors.New("storage: mode is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("storage: archive service is required")
	}
	if _, ok := archive.PointerName(cfg.Mode); ok && cfg.Pointers == nil {
		return nil, errors.New("storage: pointer service is required when following a pointer")
	}
	if cfg.Target == 0 {
		cfg.Target = archive.FastLocal
	}
	if cfg.MaxUploadSize < 0 {
		return nil, fmt.Errorf("storage: negative upload limit %d", cfg.MaxUploadSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cell, err := archive.NewCell(cfg.Mode.Seed())
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &Archive{
		service:   cfg.Service,
		resolver:  pointer.NewResolver(cfg.Mode, cell, cfg.Pointers, logger),
		publisher: pointer.NewPublisher(cfg.Mode, cfg.Pointers, logger),
		cell:      cell,
		events:    cfg.Events,
		logger:    logger,
		target:    cfg.Target,
		maxUpload: cfg.MaxUploadSize,
		onCommit:  cfg.OnCommit,
	}, nil
}

// Resolver returns the resolver bound to this backend's cell.
func (a *Archive) Resolver() *pointer.Resolver { return a.resolver }

// Publisher returns the publisher for this backend's pointer.
func (a *Archive) Publisher() *pointer.Publisher { return a.publisher }

// Address returns the current address without resolving.
func (a *Archive) Address() archive.Address { return a.cell.Snapshot() }

func (a *Archive) Metadata(ctx context.Context, user User, path string) (Metadata, error) {
	res, err := a.fetch(ctx, "metadata", path)
	if err != nil {
		return Metadata{}, a.done(user, "metadata", path, 0, err)
	}
	md := Metadata{
		Len:      uint64(len(res.Content)),
		Dir:      len(res.Items) > 0,
		Modified: time.Now(),
	}
	return md, a.done(user, "metadata", path, 0, nil)
}

func (a *Archive) List(ctx context.Context, user User, path string) ([]FileInfo, error) {
	res, err := a.fetch(ctx, "list", path)
	if err != nil {
		return nil, a.done(user, "list", path, 0, err)
	}
	infos := make([]FileInfo, 0, len(res.Items))
	for _, it := range res.Items {
		infos = append(infos, FileInfo{
			Name:     it.Name,
			Size:     it.Size,
			Modified: it.Modified,
			Dir:      it.IsDir(),
		})
	}
	return infos, a.done(user, "list", path, 0, nil)
}

func (a *Archive) Get(ctx context.Context, user User, path string, startPos uint64) (*Content, error) {
	res, err := a.fetch(ctx, "get", path)
	if err != nil {
		return nil, a.done(user, "get", path, 0, err)
	}
	if !res.HasContent() {
		return nil, a.done(user, "get", path, 0, newError(NotAvailable, "get", path, errNoContent))
	}
	if startPos > uint64(len(res.Content)) {
		err := fmt.Errorf("start position %d beyond length %d", startPos, len(res.Content))
		return nil, a.done(user, "get", path, 0, newError(NotAvailable, "get", path, err))
	}
	body := res.Content[startPos:]
	return NewContent(body), a.done(user, "get", path, int64(len(body)), nil)
}

func (a *Archive) Cwd(ctx context.Context, user User, path string) error {
	_, err := a.fetch(ctx, "cwd", path)
	return a.done(user, "cwd", path, 0, err)
}

// Put drains r and writes it as one file at path. Nothing is sent when r
// fails or exceeds the upload limit.
func (a *Archive) Put(ctx context.Context, user User, r io.Reader, path string, startPos uint64) (int64, error) {
	if startPos > 0 {
		return 0, a.done(user, "put", path, 0, newError(Unimplemented, "put", path, errPartialWrite))
	}

	data, err := a.drain(r)
	if err != nil {
		return 0, a.done(user, "put", path, 0, newError(LocalIO, "put", path, err))
	}

	files := []archive.File{{Name: pathpkg.Base(path), Content: data}}
	err = a.mutate(ctx, "put", path, func(ctx context.Context, base archive.Address) (archive.Address, error) {
		return a.service.Update(ctx, base, files, path, a.target)
	})
	if err != nil {
		return 0, a.done(user, "put", path, 0, err)
	}
	n := int64(len(data))
	return n, a.done(user, "put", path, n, nil)
}

func (a *Archive) Del(ctx context.Context, user User, path string) error {
	return a.done(user, "del", path, 0, a.truncate(ctx, "del", path))
}

func (a *Archive) Rmd(ctx context.Context, user User, path string) error {
	return a.done(user, "rmd", path, 0, a.truncate(ctx, "rmd", path))
}

// Mkd asks the service to materialize path as an empty directory.
func (a *Archive) Mkd(ctx context.Context, user User, path string) error {
	err := a.mutate(ctx, "mkd", path, func(ctx context.Context, base archive.Address) (archive.Address, error) {
		return a.service.Update(ctx, base, nil, path, a.target)
	})
	return a.done(user, "mkd", path, 0, err)
}

func (a *Archive) Rename(_ context.Context, user User, from, _ string) error {
	return a.done(user, "rename", from, 0, newError(Unimplemented, "rename", from, errRename))
}

// Del and Rmd send the same request; the service decides what path names.
func (a *Archive) truncate(ctx context.Context, op, path string) error {
	return a.mutate(ctx, op, path, func(ctx context.Context, base archive.Address) (archive.Address, error) {
		return a.service.Truncate(ctx, base, path, a.target)
	})
}

func (a *Archive) fetch(ctx context.Context, op, path string) (*archive.GetResult, error) {
	if err := a.resolver.Resolve(ctx); err != nil {
		return nil, newError(NotAvailable, op, path, err)
	}
	res, err := a.service.Get(ctx, a.cell.Snapshot(), path, a.target)
	if err != nil {
		return nil, newError(NotAvailable, op, path, err)
	}
	if res == nil {
		return nil, newError(NotAvailable, op, path, errNoResponse)
	}
	return res, nil
}

// mutate runs call against the current address and commits its result.
// The cell is held exclusively for the whole sequence. The remote call and
// publish are detached from ctx's cancellation: once sent, a mutation is
// always committed locally so the cell never lags the remote store.
func (a *Archive) mutate(ctx context.Context, op, path string, call func(context.Context, archive.Address) (archive.Address, error)) error {
	if err := a.resolver.Resolve(ctx); err != nil {
		return newError(NotAvailable, op, path, err)
	}

	g := a.cell.Begin()
	defer g.Release()

	rctx := context.WithoutCancel(ctx)
	base := g.Address()
	next, err := call(rctx, base)
	if err != nil {
		return newError(NotAvailable, op, path, err)
	}
	if next == "" {
		a.logger.Debug("no new address", "op", op, "path", path, "address", base)
		return nil
	}
	if err := g.Commit(next); err != nil {
		return newError(NotAvailable, op, path, err)
	}
	a.logger.Debug("address committed", "op", op, "path", path, "from", base, "to", next)
	if a.onCommit != nil {
		a.onCommit(next)
	}
	event.Emit(a.events, event.Event{Type: event.AddressCommitted, Op: op, Path: path, Address: string(next)})

	if !a.publisher.Enabled() {
		return nil
	}
	if err := a.publisher.Publish(rctx, next, a.target); err != nil {
		event.Emit(a.events, event.Event{Type: event.PublishFailed, Op: op, Path: path, Address: string(next), Error: err})
		return newError(NotAvailable, op, path, err)
	}
	event.Emit(a.events, event.Event{Type: event.PointerPublished, Op: op, Path: path, Address: string(next)})
	return nil
}

func (a *Archive) drain(r io.Reader) ([]byte, error) {
	if a.maxUpload <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > a.maxUpload {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, a.maxUpload)
	}
	return data, nil
}

// done logs and emits the outcome of a verb and returns err unchanged.
func (a *Archive) done(user User, op, path string, size int64, err error) error {
	if err != nil {
		a.logger.Warn("storage operation failed", "op", op, "path", path, "user", user.String(), "error", err)
		event.Emit(a.events, event.Event{Type: event.OpFailed, Op: op, Path: path, Error: err})
		return err
	}
	a.logger.Debug("storage operation", "op", op, "path", path, "user", user.String(), "size", size)
	event.Emit(a.events, event.Event{Type: event.OpCompleted, Op: op, Path: path, Size: size})
	return nil
}

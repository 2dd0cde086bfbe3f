package pointer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/traktion/antftp/internal/archive"
)

// Resolver refreshes an address cell from a pointer before dependent work.
type Resolver struct {
	mode    archive.Mode
	cell    *archive.Cell
	service Service
	logger  *slog.Logger
}

// NewResolver creates a resolver for mode. service may be nil for Direct
// modes, which never consult it.
func NewResolver(mode archive.Mode, cell *archive.Cell, service Service, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		mode:    mode,
		cell:    cell,
		service: service,
		logger:  logger,
	}
}

// Cell returns the cell this resolver refreshes.
func (r *Resolver) Cell() *archive.Cell { return r.cell }

// Resolve looks up the configured pointer and commits its target into the
// cell. Without a pointer it succeeds without touching the cell. The
// lookup runs inside the cell's exclusive section so it never interleaves
// with a mutation. On failure the cell keeps its previous address.
func (r *Resolver) Resolve(ctx context.Context) error {
	name, ok := archive.PointerName(r.mode)
	if !ok {
		return nil
	}

	g := r.cell.Begin()
	defer g.Release()

	rec, err := r.service.Get(ctx, name)
	if err != nil {
		return &Error{Op: "resolve", Name: name, Err: err}
	}
	if rec == nil {
		return &Error{Op: "resolve", Name: name, Err: errors.New("no such pointer")}
	}
	if rec.Content == "" {
		return &Error{Op: "resolve", Name: name, Err: archive.ErrEmptyAddress}
	}

	prev := g.Address()
	if err := g.Commit(rec.Content); err != nil {
		return &Error{Op: "resolve", Name: name, Err: err}
	}
	if prev != rec.Content {
		r.logger.Debug("pointer moved", "pointer", name, "from", prev, "to", rec.Content)
	}
	return nil
}

// Current resolves and then returns the cell's address.
func (r *Resolver) Current(ctx context.Context) (archive.Address, error) {
	if err := r.Resolve(ctx); err != nil {
		return "", err
	}
	return r.cell.Snapshot(), nil
}

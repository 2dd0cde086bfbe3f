package pointer

import (
	"context"
	"log/slog"

	"github.com/traktion/antftp/internal/archive"
)

// Publisher writes new archive addresses under the configured pointer.
type Publisher struct {
	mode    archive.Mode
	service Service
	logger  *slog.Logger
}

// NewPublisher creates a publisher for mode. service may be nil for Direct
// modes.
func NewPublisher(mode archive.Mode, service Service, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{mode: mode, service: service, logger: logger}
}

// Enabled reports whether Publish does anything.
func (p *Publisher) Enabled() bool {
	_, ok := archive.PointerName(p.mode)
	return ok
}

// Publish points the configured pointer at addr on target. Without a
// pointer it is a no-op. A failure leaves the remote pointer at its
// previous address; nothing local is rolled back.
func (p *Publisher) Publish(ctx context.Context, addr archive.Address, target archive.StoreTarget) error {
	name, ok := archive.PointerName(p.mode)
	if !ok {
		return nil
	}

	rec := Record{Name: name, Content: addr}
	if err := p.service.Update(ctx, name, rec, target); err != nil {
		return &Error{Op: "publish", Name: name, Address: addr, Err: err}
	}
	p.logger.Debug("pointer published", "pointer", name, "address", addr, "target", target)
	return nil
}

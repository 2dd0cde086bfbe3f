package anttp

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/pointer"
)

// Pointers is the pointer API. It implements pointer.Service.
type Pointers struct {
	c *Client
}

var _ pointer.Service = (*Pointers)(nil)

type pointerJSON struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Cost    string `json:"cost,omitempty"`
	Counter uint64 `json:"counter,omitempty"`
}

func pointerPath(name string) string {
	return apiPrefix + "/pointer/" + url.PathEscape(name)
}

// Get returns the pointer named name, or nil when the server has none.
func (p *Pointers) Get(ctx context.Context, name string) (*pointer.Record, error) {
	if name == "" {
		return nil, errors.New("pointer name is required")
	}
	var resp pointerJSON
	found, err := p.c.do(ctx, request{
		op:       "pointer_get",
		method:   http.MethodGet,
		path:     pointerPath(name),
		allow404: true,
	}, &resp)
	if err != nil || !found {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = name
	}
	return &pointer.Record{
		Name:    resp.Name,
		Content: archive.Address(resp.Content),
		Counter: resp.Counter,
		Cost:    resp.Cost,
	}, nil
}

func (p *Pointers) Update(ctx context.Context, name string, rec pointer.Record, target archive.StoreTarget) error {
	if name == "" {
		return errors.New("pointer name is required")
	}
	if rec.Content == "" {
		return archive.ErrEmptyAddress
	}
	_, err := p.c.do(ctx, request{
		op:        "pointer_update",
		method:    http.MethodPut,
		path:      pointerPath(name),
		storeType: target.String(),
		body:      pointerJSON{Name: name, Content: string(rec.Content)},
	}, nil)
	return err
}

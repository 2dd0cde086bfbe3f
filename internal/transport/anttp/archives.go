package anttp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/traktion/antftp/internal/archive"
)

// Archives is the public archive API. It implements archive.Service.
type Archives struct {
	c *Client
}

var _ archive.Service = (*Archives)(nil)

type itemJSON struct {
	Modified time.Time `json:"modified,omitzero"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Size     uint64    `json:"size"`
}

type fileJSON struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

type getResponse struct {
	Address string     `json:"address"`
	Items   []itemJSON `json:"items"`
	// Content is null when the path does not name a file.
	Content []byte `json:"content"`
}

type updateRequest struct {
	Files []fileJSON `json:"files"`
}

type addressResponse struct {
	Address string `json:"address"`
}

func archivePath(addr archive.Address, path string) string {
	return apiPrefix + "/public_archive/" + url.PathEscape(string(addr)) + "/" + escapePath(path)
}

func (a *Archives) Get(ctx context.Context, addr archive.Address, path string, target archive.StoreTarget) (*archive.GetResult, error) {
	if addr == "" {
		return nil, archive.ErrEmptyAddress
	}
	var resp getResponse
	_, err := a.c.do(ctx, request{
		op:        "get",
		method:    http.MethodGet,
		path:      archivePath(addr, path),
		storeType: target.String(),
		limit:     responseLimitArchive,
	}, &resp)
	if err != nil {
		return nil, err
	}

	res := &archive.GetResult{
		Address: archive.Address(resp.Address),
		Content: resp.Content,
	}
	if res.Address == "" {
		res.Address = addr
	}
	for _, it := range resp.Items {
		res.Items = append(res.Items, archive.Item{
			Name:     it.Name,
			Size:     it.Size,
			Modified: it.Modified,
			Kind:     it.Type,
		})
	}
	return res, nil
}

func (a *Archives) Update(ctx context.Context, addr archive.Address, files []archive.File, path string, target archive.StoreTarget) (archive.Address, error) {
	if addr == "" {
		return "", archive.ErrEmptyAddress
	}
	body := updateRequest{Files: make([]fileJSON, 0, len(files))}
	for _, f := range files {
		if f.Name == "" {
			return "", errors.New("archive file name is required")
		}
		body.Files = append(body.Files, fileJSON{Name: f.Name, Content: f.Content})
	}
	return a.mutate(ctx, request{
		op:        "update",
		method:    http.MethodPut,
		path:      archivePath(addr, path),
		storeType: target.String(),
		body:      body,
		once:      true,
	})
}

func (a *Archives) Truncate(ctx context.Context, addr archive.Address, path string, target archive.StoreTarget) (archive.Address, error) {
	if addr == "" {
		return "", archive.ErrEmptyAddress
	}
	return a.mutate(ctx, request{
		op:        "truncate",
		method:    http.MethodDelete,
		path:      archivePath(addr, path),
		storeType: target.String(),
		once:      true,
	})
}

func (a *Archives) Push(ctx context.Context, addr archive.Address, target archive.StoreTarget) (archive.Address, error) {
	if addr == "" {
		return "", archive.ErrEmptyAddress
	}
	return a.mutate(ctx, request{
		op:        "push",
		method:    http.MethodPost,
		path:      apiPrefix + "/public_archive/" + url.PathEscape(string(addr)) + "/push",
		storeType: target.String(),
	})
}

func (a *Archives) mutate(ctx context.Context, r request) (archive.Address, error) {
	var resp addressResponse
	if _, err := a.c.do(ctx, r, &resp); err != nil {
		return "", err
	}
	return archive.Address(resp.Address), nil
}

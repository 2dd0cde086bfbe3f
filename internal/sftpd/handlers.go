package sftpd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/sftp"

	"github.com/traktion/antftp/internal/filter"
	"github.com/traktion/antftp/internal/storage"
)

// Handlers returns request-server handlers that drive backend on behalf of
// user. Uploads and new directories are checked against policy first; a nil
// policy accepts everything.
func Handlers(backend storage.Backend, policy *filter.Policy, user storage.User, logger *slog.Logger) sftp.Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		backend: backend,
		policy:  policy,
		user:    user,
		logger:  logger.With("user", user.String()),
	}
	return sftp.Handlers{FileGet: h, FilePut: h, FileCmd: h, FileList: h}
}

type handler struct {
	backend storage.Backend
	policy  *filter.Policy
	logger  *slog.Logger
	user    storage.User
}

func (h *handler) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	content, err := h.backend.Get(r.Context(), h.user, r.Filepath, 0)
	if err != nil {
		return nil, statusError(err)
	}
	return content, nil
}

func (h *handler) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	if r.Pflags().Append {
		return nil, sftp.ErrSSHFxOpUnsupported
	}
	if err := h.policy.CheckPath(r.Filepath, false); err != nil {
		h.logger.Info("upload rejected", "path", r.Filepath, "error", err)
		return nil, statusError(err)
	}
	return &upload{h: h, ctx: r.Context(), path: r.Filepath}, nil
}

func (h *handler) Filecmd(r *sftp.Request) error {
	ctx := r.Context()
	switch r.Method {
	case "Setstat":
		return nil
	case "Rename", "PosixRename":
		return statusError(h.backend.Rename(ctx, h.user, r.Filepath, r.Target))
	case "Rmdir":
		return statusError(h.backend.Rmd(ctx, h.user, r.Filepath))
	case "Remove":
		return statusError(h.backend.Del(ctx, h.user, r.Filepath))
	case "Mkdir":
		if err := h.policy.CheckPath(r.Filepath, true); err != nil {
			return statusError(err)
		}
		return statusError(h.backend.Mkd(ctx, h.user, r.Filepath))
	default:
		return sftp.ErrSSHFxOpUnsupported
	}
}

func (h *handler) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	ctx := r.Context()
	switch r.Method {
	case "List":
		entries, err := h.backend.List(ctx, h.user, r.Filepath)
		if err != nil {
			return nil, statusError(err)
		}
		infos := make(listerAt, 0, len(entries))
		for _, e := range entries {
			infos = append(infos, entryInfo(e))
		}
		return infos, nil
	case "Stat", "Lstat":
		md, err := h.backend.Metadata(ctx, h.user, r.Filepath)
		if err != nil {
			return nil, statusError(err)
		}
		return listerAt{metadataInfo(r.Filepath, md)}, nil
	default:
		return nil, sftp.ErrSSHFxOpUnsupported
	}
}

// MaxBufferedUpload caps the in-memory buffer of a single upload when the
// policy sets no tighter limit.
const MaxBufferedUpload int64 = 1 << 30

// uploadLimit returns the largest end offset an upload may write to.
func (h *handler) uploadLimit() int64 {
	if n := h.policy.MaxSize(); n > 0 && n < MaxBufferedUpload {
		return n
	}
	return MaxBufferedUpload
}

// upload buffers a file in memory and stores it with one Put on Close. A
// failed write discards the upload.
type upload struct {
	ctx    context.Context
	failed error
	h      *handler
	path   string
	buf    []byte
	mu     sync.Mutex
	done   bool
}

func (u *upload) WriteAt(p []byte, off int64) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failed != nil {
		return 0, u.failed
	}
	end := off + int64(len(p))
	if off < 0 || end < off {
		u.h.logger.Info("upload rejected", "path", u.path, "offset", off)
		return 0, u.fail(sftp.ErrSSHFxFailure)
	}
	if err := u.h.policy.CheckSize(end); err != nil {
		u.h.logger.Info("upload rejected", "path", u.path, "error", err)
		return 0, u.fail(statusError(err))
	}
	if end > u.h.uploadLimit() {
		u.h.logger.Info("upload rejected", "path", u.path, "offset", off, "limit", u.h.uploadLimit())
		return 0, u.fail(sftp.ErrSSHFxFailure)
	}
	if end > int64(len(u.buf)) {
		if end > int64(cap(u.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(u.buf))))
			copy(grown, u.buf)
			u.buf = grown
		} else {
			u.buf = u.buf[:end]
		}
	}
	return copy(u.buf[off:], p), nil
}

// fail poisons the upload so Close stores nothing. Callers hold u.mu.
func (u *upload) fail(err error) error {
	u.failed = err
	u.buf = nil
	return err
}

func (u *upload) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	if u.failed != nil {
		return u.failed
	}

	_, err := u.h.backend.Put(u.ctx, u.h.user, bytes.NewReader(u.buf), u.path, 0)
	u.buf = nil
	return statusError(err)
}

// statusError maps backend and policy errors onto SFTP status codes.
func statusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, filter.ErrRejected):
		return sftp.ErrSSHFxPermissionDenied
	case errors.Is(err, os.ErrNotExist):
		return sftp.ErrSSHFxNoSuchFile
	}
	switch storage.KindOf(err) {
	case storage.NotAvailable:
		return sftp.ErrSSHFxNoSuchFile
	case storage.Unimplemented:
		return sftp.ErrSSHFxOpUnsupported
	default:
		return sftp.ErrSSHFxFailure
	}
}

package sftpd

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/traktion/antftp/internal/storage"
)

type fileInfo struct {
	modified time.Time
	name     string
	size     int64
	dir      bool
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) ModTime() time.Time { return fi.modified }
func (fi fileInfo) IsDir() bool        { return fi.dir }
func (fi fileInfo) Sys() any           { return nil }

func (fi fileInfo) Mode() os.FileMode {
	if fi.dir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func entryInfo(e storage.FileInfo) os.FileInfo {
	return fileInfo{
		name:     e.Name,
		size:     clampSize(e.Size),
		modified: e.Modified,
		dir:      e.Dir,
	}
}

func metadataInfo(p string, md storage.Metadata) os.FileInfo {
	name := path.Base(p)
	return fileInfo{
		name:     name,
		size:     clampSize(md.Len),
		modified: md.Modified,
		dir:      md.Dir || isRoot(p),
	}
}

func clampSize(n uint64) int64 {
	if n > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(n)
}

func isRoot(p string) bool {
	return path.Clean("/"+p) == "/"
}

// listerAt serves a fixed slice of entries to the request server.
type listerAt []os.FileInfo

func (l listerAt) ListAt(dst []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[offset:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

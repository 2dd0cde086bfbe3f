// Package filter is the upload policy: rsync-style include/exclude globs
// and a size cap applied to files and directories created by clients.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected is matched by every policy rejection.
var ErrRejected = errors.New("rejected by upload policy")

// Options configures a Policy. Rules are evaluated first match wins, in
// the order: Include, then the rules in File, then Exclude.
type Options struct {
	File    string
	Include []string
	Exclude []string
	MaxSize int64
}

type rule struct {
	glob    *glob
	include bool
}

// Policy decides whether an upload may be written.
type Policy struct {
	rules   []rule
	maxSize int64
}

// New builds a Policy from opts.
func New(opts Options) (*Policy, error) {
	p := &Policy{maxSize: opts.MaxSize}
	for _, pat := range opts.Include {
		if err := p.add(pat, true); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		if err := p.LoadFile(opts.File); err != nil {
			return nil, err
		}
	}
	for _, pat := range opts.Exclude {
		if err := p.add(pat, false); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Policy) add(pattern string, include bool) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	p.rules = append(p.rules, rule{glob: g, include: include})
	return nil
}

// Empty reports whether the policy accepts everything.
func (p *Policy) Empty() bool {
	return p == nil || (len(p.rules) == 0 && p.maxSize == 0)
}

// MaxSize returns the upload size cap, or 0 when unbounded.
func (p *Policy) MaxSize() int64 {
	if p == nil {
		return 0
	}
	return p.maxSize
}

// CheckPath returns nil if path may be created. Paths are slash-separated
// and may be absolute; they are matched relative to the archive root.
func (p *Policy) CheckPath(path string, isDir bool) error {
	if p == nil {
		return nil
	}
	rel := strings.Trim(path, "/")
	if rel == "" {
		return nil
	}
	for _, r := range p.rules {
		if !r.glob.match(rel, isDir) {
			continue
		}
		if r.include {
			return nil
		}
		return fmt.Errorf("%s: %w (matches %q)", path, ErrRejected, r.glob.source)
	}
	return nil
}

// CheckSize returns nil if an upload of size bytes is within the cap.
func (p *Policy) CheckSize(size int64) error {
	if p == nil || p.maxSize <= 0 || size <= p.maxSize {
		return nil
	}
	return fmt.Errorf("%d bytes: %w (limit %d)", size, ErrRejected, p.maxSize)
}

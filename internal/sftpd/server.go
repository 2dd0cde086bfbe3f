// Package sftpd serves a storage.Backend over SFTP.
package sftpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/traktion/antftp/internal/filter"
	"github.com/traktion/antftp/internal/storage"
)

// DefaultShutdownGrace is how long live sessions may run after shutdown
// begins.
const DefaultShutdownGrace = 30 * time.Second

// Config configures a Server.
type Config struct {
	Backend storage.Backend
	HostKey ssh.Signer
	// Policy is enforced on uploads and new directories. Nil accepts all.
	Policy *filter.Policy
	Logger *slog.Logger
	Auth   Auth
	Banner string
	// ShutdownGrace defaults to DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

// Server accepts SSH connections and runs the sftp subsystem on them.
type Server struct {
	backend storage.Backend
	policy  *filter.Policy
	logger  *slog.Logger
	ssh     *ssh.ServerConfig
	conns   map[net.Conn]struct{}
	grace   time.Duration
	mu      sync.Mutex
}

// NewServer validates cfg and builds a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, errors.New("sftpd: backend is required")
	}
	if cfg.HostKey == nil {
		return nil, errors.New("sftpd: host key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	sshCfg := &ssh.ServerConfig{}
	cfg.Auth.apply(sshCfg)
	if cfg.Banner != "" {
		banner := cfg.Banner + "\r\n"
		sshCfg.BannerCallback = func(ssh.ConnMetadata) string { return banner }
	}
	sshCfg.AddHostKey(cfg.HostKey)

	return &Server{
		backend: cfg.Backend,
		policy:  cfg.Policy,
		logger:  logger.With("component", "sftpd"),
		ssh:     sshCfg,
		conns:   make(map[net.Conn]struct{}),
		grace:   grace,
	}, nil
}

// Serve accepts connections on ln until ctx is cancelled. Blocks until every
// session has ended.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("sftp server listening", "addr", ln.Addr())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		time.AfterFunc(s.grace, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for conn := range s.conns {
				conn.Close()
			}
		})
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		s.track(conn, true)
		wg.Go(func() {
			defer s.track(conn, false)
			s.ServeConn(conn)
		})
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// ServeConn runs the SSH handshake on conn and serves its sessions until the
// client disconnects or conn is closed.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.ssh)
	if err != nil {
		s.logger.Warn("handshake failed", "remote", remote, "error", err)
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	user := storage.User{Name: authenticatedUser(sconn.Permissions), RemoteAddr: remote}
	s.logger.Info("session opened", "remote", remote, "user", user.String())

	var wg sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type") //nolint:errcheck // best-effort
			continue
		}
		ch, requests, acceptErr := newCh.Accept()
		if acceptErr != nil {
			s.logger.Warn("accept channel", "remote", remote, "error", acceptErr)
			continue
		}
		wg.Go(func() { s.serveSession(ch, requests, user) })
	}
	wg.Wait()
	s.logger.Info("session closed", "remote", remote, "user", user.String())
}

func (s *Server) serveSession(ch ssh.Channel, requests <-chan *ssh.Request, user storage.User) {
	defer ch.Close()
	for req := range requests {
		if !isSFTPSubsystem(req) {
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck // best-effort
			}
			continue
		}
		req.Reply(true, nil) //nolint:errcheck // best-effort
		go ssh.DiscardRequests(requests)

		rs := sftp.NewRequestServer(ch, Handlers(s.backend, s.policy, user, s.logger))
		err := rs.Serve()
		rs.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("sftp session ended", "user", user.String(), "error", err)
		}
		return
	}
}

func isSFTPSubsystem(req *ssh.Request) bool {
	if req.Type != "subsystem" {
		return false
	}
	var payload struct{ Name string }
	if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
		return false
	}
	return payload.Name == "sftp"
}

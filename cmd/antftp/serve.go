package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/traktion/antftp/internal/config"
	"github.com/traktion/antftp/internal/event"
	"github.com/traktion/antftp/internal/filter"
	"github.com/traktion/antftp/internal/logging"
	"github.com/traktion/antftp/internal/reconcile"
	"github.com/traktion/antftp/internal/sftpd"
	"github.com/traktion/antftp/internal/stats"
	"github.com/traktion/antftp/internal/storage"
)

const eventBuffer = 1024

type serveOptions struct {
	listen        string
	hostKey       string
	metricsListen string
	maxSize       string
	filterFile    string
	exclude       []string
	include       []string
	readOnly      bool
	noReconcile   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SFTP gateway",
		Long: `Run the SFTP gateway.

The server listens for SSH connections and serves the archive through the
sftp subsystem. Logins are checked against [server.users] and
server.authorized_keys; with neither configured every login is accepted.

A persistent ed25519 host key is generated on first run next to the state
file unless server.host_key names one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			opts.apply(cmd, &cfg)
			if err := validated(cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func (o *serveOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.listen, "listen", "l", "", "SFTP listen address (host:port)")
	fs.StringVar(&o.hostKey, "host-key", "", "SSH host key file (generated if missing)")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	fs.StringVar(&o.maxSize, "max-size", "", "reject uploads larger than SIZE (e.g. 100M, 1G)")
	fs.StringVar(&o.filterFile, "filter", "", "read upload filter rules from FILE")
	fs.Var(&patternFlag{patterns: &o.exclude}, "exclude", "reject uploads matching PATTERN (repeatable)")
	fs.Var(&patternFlag{patterns: &o.include}, "include", "accept uploads matching PATTERN (repeatable)")
	fs.BoolVar(&o.readOnly, "read-only", false, "reject every mutating request")
	fs.BoolVar(&o.noReconcile, "no-reconcile", false, "disable background push to the network tier")
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Server.Listen = o.listen
	}
	if fs.Changed("host-key") {
		cfg.Server.HostKey = o.hostKey
	}
	if fs.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.metricsListen
	}
	if fs.Changed("max-size") {
		cfg.Upload.MaxSize = o.maxSize
	}
	if fs.Changed("filter") {
		cfg.Upload.FilterFile = o.filterFile
	}
	if fs.Changed("read-only") {
		cfg.Server.ReadOnly = o.readOnly
	}
	if fs.Changed("no-reconcile") {
		cfg.Reconcile.Enabled = !o.noReconcile
	}
	cfg.Upload.Include = append(cfg.Upload.Include, o.include...)
	cfg.Upload.Exclude = append(cfg.Upload.Exclude, o.exclude...)
}

//nolint:revive // cognitive-complexity: wires every long-running component
func runServe(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(logCloser)

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	events := make(chan event.Event, eventBuffer)
	state := newStateRecorder(cfg.Archive, logger)
	archiveBackend, err := newBackend(cfg, client, events, state.committed, logger)
	if err != nil {
		return err
	}
	var backend storage.Backend = archiveBackend
	if cfg.Server.ReadOnly {
		backend = storage.ReadOnly(backend)
	}

	policy, err := uploadPolicy(cfg.Upload)
	if err != nil {
		return err
	}

	srv, err := newSFTPServer(cfg, backend, policy, logger)
	if err != nil {
		return err
	}

	collector := stats.NewCollector()

	var rec *reconcile.Reconciler
	if cfg.Reconcile.Enabled {
		rec, err = reconcile.New(reconcile.Config{
			Resolver:  archiveBackend.Resolver(),
			Publisher: archiveBackend.Publisher(),
			Service:   client.Archives(),
			Events:    events,
			Logger:    logger,
			Period:    cfg.Reconcile.Period.Duration,
			Target:    cfg.Reconcile.Target,
			Immediate: cfg.Reconcile.Immediate,
			OnSync:    state.synced,
		})
		if err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}

	logger.Info("antftp starting",
		"version", version,
		"endpoint", client.Endpoint(),
		"address", archiveBackend.Address(),
		"pointer", cfg.Archive.Pointer,
		"store", cfg.Archive.Store,
		"read_only", cfg.Server.ReadOnly,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		collector.Consume(gctx, events, time.Second,
			func(ev event.Event) { logging.LogEvent(gctx, logger, ev) },
		)
		return nil
	})
	if rec != nil {
		g.Go(func() error { return rec.Run(gctx) })
	}
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, collector, logger) })
	}

	err = g.Wait()
	// Sessions can still finish verbs during the shutdown grace, after the
	// consumer has returned.
	drainEvents(context.WithoutCancel(ctx), events, collector, logger)
	logger.Info("antftp stopped", "stats", collector.Snapshot().String())
	return err
}

func drainEvents(ctx context.Context, events <-chan event.Event, collector *stats.Collector, logger *slog.Logger) {
	for {
		select {
		case ev := <-events:
			collector.Record(ev)
			logging.LogEvent(ctx, logger, ev)
		default:
			return
		}
	}
}

func uploadPolicy(u config.UploadConfig) (*filter.Policy, error) {
	maxSize, err := u.MaxBytes()
	if err != nil {
		return nil, fmt.Errorf("upload.max_size: %w", err)
	}
	policy, err := filter.New(filter.Options{
		File:    u.FilterFile,
		Include: u.Include,
		Exclude: u.Exclude,
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("upload filter: %w", err)
	}
	if policy.Empty() {
		return nil, nil
	}
	return policy, nil
}

func newSFTPServer(cfg config.Config, backend storage.Backend, policy *filter.Policy, logger *slog.Logger) (*sftpd.Server, error) {
	keyPath := cfg.Server.HostKey
	if keyPath == "" {
		keyPath = filepath.Join(filepath.Dir(config.StatePath()), "host_ed25519")
	}
	hostKey, err := sftpd.LoadOrCreateHostKey(keyPath)
	if err != nil {
		return nil, err
	}

	auth := sftpd.Auth{Users: cfg.Server.Users}
	if cfg.Server.AuthorizedKeys != "" {
		auth.Keys, err = sftpd.LoadAuthorizedKeys(cfg.Server.AuthorizedKeys)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("sftp host key",
		"fingerprint", ssh.FingerprintSHA256(hostKey.PublicKey()),
		"known_hosts", sftpd.KnownHostsLine(cfg.Server.Listen, hostKey.PublicKey()),
	)
	if auth.Anonymous() {
		logger.Warn("no users or authorized keys configured; accepting every login")
	}

	return sftpd.NewServer(sftpd.Config{
		Backend: backend,
		HostKey: hostKey,
		Policy:  policy,
		Logger:  logger,
		Auth:    auth,
		Banner:  cfg.Server.Banner,
	})
}

func serveMetrics(ctx context.Context, addr string, collector *stats.Collector, logger *slog.Logger) error {
	reg := prometheus.DefaultRegisterer
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck // best-effort
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort
	})
	defer stop()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/config"
	"github.com/traktion/antftp/internal/event"
	"github.com/traktion/antftp/internal/logging"
	"github.com/traktion/antftp/internal/storage"
	"github.com/traktion/antftp/internal/transport/anttp"
)

// rootOptions are the flags shared by every subcommand. They override the
// config file only when set on the command line.
type rootOptions struct {
	configPath string
	endpoint   string
	address    string
	pointer    string
	store      string
	logLevel   string
	logFile    string
}

func (o *rootOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/antftp/config.toml)")
	fs.StringVar(&o.endpoint, "endpoint", "", "AntTP server URL (env "+config.EnvEndpoint+")")
	fs.StringVar(&o.address, "address", "", "archive address to serve")
	fs.StringVar(&o.pointer, "pointer", "", "pointer name to follow and publish")
	fs.StringVar(&o.store, "store", "", "store tier for reads and writes (memory, disk, network)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log", "", "also write structured JSON log to FILE")
}

// load reads the config file and applies every flag the user set.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := o.apply(cmd.Flags(), &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *rootOptions) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("endpoint") {
		cfg.Archive.Endpoint = o.endpoint
	}
	if fs.Changed("address") {
		cfg.Archive.Address = o.address
	}
	if fs.Changed("pointer") {
		cfg.Archive.Pointer = o.pointer
	}
	if fs.Changed("store") {
		target, err := archive.ParseStoreTarget(o.store)
		if err != nil {
			return fmt.Errorf("invalid --store: %w", err)
		}
		cfg.Archive.Store = target
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("log") {
		cfg.Log.File = o.logFile
	}
	return nil
}

// patternFlag appends each use to a slice, keeping command-line order.
type patternFlag struct {
	patterns *[]string
}

func (*patternFlag) Type() string { return "pattern" }

func (f *patternFlag) String() string {
	if f.patterns == nil {
		return ""
	}
	return strings.Join(*f.patterns, ",")
}

func (f *patternFlag) Set(val string) error {
	if strings.TrimSpace(val) == "" {
		return errors.New("empty pattern")
	}
	*f.patterns = append(*f.patterns, val)
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Stderr: os.Stderr,
		File:   cfg.Log.File,
		Level:  level,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

func newClient(cfg config.Config, logger *slog.Logger) (*anttp.Client, error) {
	return anttp.NewClient(cfg.Archive.Endpoint, anttp.Options{
		Logger:            logger,
		Timeout:           cfg.Archive.Timeout.Duration,
		MaxAttempts:       cfg.Archive.MaxAttempts,
		RequestsPerSecond: cfg.Archive.RequestsPerSecond,
		Compress:          cfg.Archive.Compress,
	})
}

// newBackend builds the archive backend. A Direct-mode archive resumes from
// the state file when the state was written for the same seed address.
// onCommit may be nil.
func newBackend(cfg config.Config, client *anttp.Client, events chan<- event.Event, onCommit func(archive.Address), logger *slog.Logger) (*storage.Archive, error) {
	maxUpload, err := cfg.Upload.MaxBytes()
	if err != nil {
		return nil, fmt.Errorf("upload.max_size: %w", err)
	}
	mode := cfg.Archive.Mode()
	if _, pointerBacked := archive.PointerName(mode); !pointerBacked {
		mode = resumeMode(cfg.Archive, mode, logger)
	}
	return storage.New(storage.Config{
		Mode:          mode,
		Service:       client.Archives(),
		Pointers:      client.Pointers(),
		Events:        events,
		Logger:        logger,
		Target:        cfg.Archive.Store,
		MaxUploadSize: maxUpload,
		OnCommit:      onCommit,
	})
}

//nolint:ireturn // sum type
func resumeMode(ac config.ArchiveConfig, mode archive.Mode, logger *slog.Logger) archive.Mode {
	path := ac.StateFilePath()
	if path == "" {
		return mode
	}
	st, err := config.ReadState(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return mode
	case err != nil:
		logger.Warn("ignoring unreadable state file", "path", path, "error", err)
		return mode
	case st.Seed != string(mode.Seed()) || st.Address == "":
		logger.Debug("state file is for another archive", "path", path, "seed", st.Seed)
		return mode
	}
	logger.Info("resuming from state file", "address", st.Address, "seed", st.Seed)
	return archive.NewMode(archive.Address(st.Address), "")
}

func validated(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	return nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close() //nolint:errcheck // best-effort at exit
	}
}

// commandContext returns cmd's context, or Background when run directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

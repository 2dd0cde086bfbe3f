package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/filter"
)

// EnvEndpoint overrides archive.endpoint when set.
const EnvEndpoint = "ANTTP_ENDPOINT"

// Config represents the antftp configuration file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Archive   ArchiveConfig   `toml:"archive"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Upload    UploadConfig    `toml:"upload"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig configures the SFTP listener.
type ServerConfig struct {
	// Users maps user names to passwords or bcrypt hashes.
	Users          map[string]string `toml:"users"`
	Listen         string            `toml:"listen"`
	HostKey        string            `toml:"host_key"`
	Banner         string            `toml:"banner"`
	AuthorizedKeys string            `toml:"authorized_keys"`
	ReadOnly       bool              `toml:"read_only"`
}

// ArchiveConfig selects the archive and how to reach it.
type ArchiveConfig struct {
	Endpoint string `toml:"endpoint"`
	Address  string `toml:"address"`
	// Pointer, when set, is followed instead of pinning Address.
	Pointer string `toml:"pointer"`
	// StateFile records the latest address across restarts. Empty uses
	// StatePath(); "-" disables it.
	StateFile         string              `toml:"state_file"`
	Store             archive.StoreTarget `toml:"store"`
	Timeout           Duration            `toml:"timeout"`
	MaxAttempts       int                 `toml:"max_attempts"`
	RequestsPerSecond float64             `toml:"requests_per_second"`
	Compress          bool                `toml:"compress"`
}

// ReconcileConfig configures background propagation to the network tier.
type ReconcileConfig struct {
	Period    Duration            `toml:"period"`
	Target    archive.StoreTarget `toml:"target"`
	Enabled   bool                `toml:"enabled"`
	Immediate bool                `toml:"immediate"`
}

// UploadConfig is the upload policy.
type UploadConfig struct {
	MaxSize    string   `toml:"max_size"`
	FilterFile string   `toml:"filter_file"`
	Exclude    []string `toml:"exclude"`
	Include    []string `toml:"include"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
	// File receives JSON logs in addition to stderr.
	File string `toml:"file"`
}

// Defaults returns the configuration used for keys the file omits.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:2222",
			Banner: "Welcome to ANT FTP server",
		},
		Archive: ArchiveConfig{
			Endpoint:    "http://localhost:18888",
			Store:       archive.FastLocal,
			Timeout:     Duration{60 * time.Second},
			MaxAttempts: 3,
		},
		Reconcile: ReconcileConfig{
			Enabled:   true,
			Period:    Duration{60 * time.Second},
			Target:    archive.Network,
			Immediate: true,
		},
		Upload: UploadConfig{
			MaxSize: "256M",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "antftp", "config.toml")
}

// Load reads the config file at path, or at Path() when path is empty, on
// top of Defaults. A missing file at the default path is not an error; a
// missing file that was asked for explicitly is. EnvEndpoint is applied
// last.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = Path()
	}
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case err == nil:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, err
		}
	}

	if ep := strings.TrimSpace(os.Getenv(EnvEndpoint)); ep != "" {
		cfg.Archive.Endpoint = ep
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if strings.TrimSpace(c.Archive.Endpoint) == "" {
		errs = append(errs, errors.New("archive.endpoint is required"))
	}
	if strings.TrimSpace(c.Archive.Address) == "" {
		errs = append(errs, errors.New("archive.address is required"))
	}
	if !c.Archive.Store.Valid() {
		errs = append(errs, errors.New("archive.store must be memory, disk or network"))
	}
	if c.Archive.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("archive.timeout must be positive"))
	}
	if c.Archive.MaxAttempts < 1 {
		errs = append(errs, errors.New("archive.max_attempts must be at least 1"))
	}
	if c.Archive.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("archive.requests_per_second must not be negative"))
	}
	if c.Reconcile.Enabled {
		if c.Reconcile.Period.Duration <= 0 {
			errs = append(errs, errors.New("reconcile.period must be positive"))
		}
		if !c.Reconcile.Target.Valid() {
			errs = append(errs, errors.New("reconcile.target must be memory, disk or network"))
		}
	}
	if _, err := c.Upload.MaxBytes(); err != nil {
		errs = append(errs, fmt.Errorf("upload.max_size: %w", err))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Mode returns the archive mode the configuration selects.
//
//nolint:ireturn // sum type
func (c ArchiveConfig) Mode() archive.Mode {
	return archive.NewMode(archive.Address(strings.TrimSpace(c.Address)), strings.TrimSpace(c.Pointer))
}

// MaxBytes returns the upload limit in bytes. An empty or zero size means
// unbounded.
func (u UploadConfig) MaxBytes() (int64, error) {
	s := strings.TrimSpace(u.MaxSize)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := filter.ParseSize(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return n, nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(l.Level) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, err
	}
	return lvl, nil
}

// Duration is a time.Duration written as a string such as "90s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

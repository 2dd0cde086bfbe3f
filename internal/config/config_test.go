package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvEndpoint, "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_XDGPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvEndpoint, "")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "antftp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "antftp", "config.toml"),
		[]byte("[archive]\naddress = \"abc\"\n"), 0o644))

	assert.Equal(t, filepath.Join(dir, "antftp", "config.toml"), config.Path())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Archive.Address)
}

func TestLoad_FullConfig(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "")

	path := writeConfig(t, `
[server]
listen = "0.0.0.0:2022"
host_key = "/var/lib/antftp/host_key"
banner = "hi"
authorized_keys = "/etc/antftp/authorized_keys"
read_only = true

[server.users]
alice = "secret"

[archive]
endpoint = "https://anttp.example:8443"
address = "efdcdc93"
pointer = "home"
store = "DISK"
timeout = "90s"
max_attempts = 5
requests_per_second = 2.5
compress = true

[reconcile]
enabled = false
period = "5m"
target = "network"
immediate = false

[upload]
max_size = "1G"
exclude = ["*.tmp", ".git/"]
include = ["keep.tmp"]
filter_file = "/etc/antftp/filters"

[metrics]
listen = ":9100"

[log]
level = "debug"
file = "/var/log/antftp.json"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:2022", cfg.Server.Listen)
	assert.Equal(t, map[string]string{"alice": "secret"}, cfg.Server.Users)
	assert.True(t, cfg.Server.ReadOnly)

	assert.Equal(t, archive.DurableLocal, cfg.Archive.Store)
	assert.Equal(t, 90*time.Second, cfg.Archive.Timeout.Duration)
	assert.Equal(t, 5, cfg.Archive.MaxAttempts)
	assert.InDelta(t, 2.5, cfg.Archive.RequestsPerSecond, 0.001)
	assert.True(t, cfg.Archive.Compress)
	assert.Equal(t, archive.PointerBacked{Name: "home", Cached: "efdcdc93"}, cfg.Archive.Mode())

	assert.False(t, cfg.Reconcile.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Period.Duration)

	n, err := cfg.Upload.MaxBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)
	assert.Equal(t, []string{"*.tmp", ".git/"}, cfg.Upload.Exclude)

	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, "/var/log/antftp.json", cfg.Log.File)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "")

	cfg, err := config.Load(writeConfig(t, "[archive]\naddress = \"A\"\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := config.Defaults()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Reconcile, cfg.Reconcile)
	assert.Equal(t, archive.Direct{Address: "A"}, cfg.Archive.Mode())
}

func TestLoad_EnvEndpoint(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "http://10.0.0.5:18888")

	cfg, err := config.Load(writeConfig(t, "[archive]\nendpoint = \"http://ignored\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:18888", cfg.Archive.Endpoint)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"bad toml":     "[archive\n",
		"bad store":    "[archive]\nstore = \"tape\"\n",
		"bad duration": "[reconcile]\nperiod = \"soon\"\n",
		"unknown key":  "[archive]\nadress = \"A\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := config.Defaults()
	valid.Archive.Address = "A"
	require.NoError(t, valid.Validate())

	tests := map[string]func(*config.Config){
		"no address":    func(c *config.Config) { c.Archive.Address = " " },
		"no endpoint":   func(c *config.Config) { c.Archive.Endpoint = "" },
		"no listen":     func(c *config.Config) { c.Server.Listen = "" },
		"zero store":    func(c *config.Config) { c.Archive.Store = 0 },
		"zero timeout":  func(c *config.Config) { c.Archive.Timeout.Duration = 0 },
		"zero attempts": func(c *config.Config) { c.Archive.MaxAttempts = 0 },
		"negative rps":  func(c *config.Config) { c.Archive.RequestsPerSecond = -1 },
		"zero period":   func(c *config.Config) { c.Reconcile.Period.Duration = 0 },
		"bad target":    func(c *config.Config) { c.Reconcile.Target = 9 },
		"bad max size":  func(c *config.Config) { c.Upload.MaxSize = "lots" },
		"bad log level": func(c *config.Config) { c.Log.Level = "chatty" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled reconcile skips period", func(t *testing.T) {
		cfg := valid
		cfg.Reconcile.Enabled = false
		cfg.Reconcile.Period.Duration = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestUploadMaxBytesUnbounded(t *testing.T) {
	for _, s := range []string{"", "0", " "} {
		n, err := config.UploadConfig{MaxSize: s}.MaxBytes()
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestDurationText(t *testing.T) {
	var d config.Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	require.Error(t, d.UnmarshalText([]byte("ninety")))
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traktion/antftp/internal/config"
)

func TestWriteReadState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "antftp", "state.toml")
	want := config.State{
		Seed:    "A",
		Address: "A_updated",
		Synced:  "A",
		Updated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, config.WriteState(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.NoFileExists(t, path+".tmp")

	got, err := config.ReadState(path)
	require.NoError(t, err)
	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, want.Address, got.Address)
	assert.Equal(t, want.Synced, got.Synced)
	assert.True(t, want.Updated.Equal(got.Updated))
}

func TestReadStateMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte("address = \n"), 0o600))

	_, err := config.ReadState(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, os.ErrNotExist)
}

func TestStateFilePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	def := filepath.Join(dir, "antftp", "state.toml")
	assert.Equal(t, def, config.StatePath())
	assert.Equal(t, def, config.ArchiveConfig{}.StateFilePath())
	assert.Empty(t, config.ArchiveConfig{StateFile: "-"}.StateFilePath())
	assert.Equal(t, "/tmp/s.toml", config.ArchiveConfig{StateFile: "/tmp/s.toml"}.StateFilePath())
}

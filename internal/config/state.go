package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// State is the address a Direct-mode archive had reached when antftp last
// ran. It lets a restart continue from the latest snapshot instead of the
// configured seed.
type State struct {
	Updated time.Time `toml:"updated"`
	// Seed is the configured address the state was derived from. State
	// for a different seed is ignored.
	Seed    string `toml:"seed"`
	Address string `toml:"address"`
	Synced  string `toml:"synced,omitempty"`
}

// StatePath returns the default state file location.
func StatePath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "antftp", "state.toml")
}

// StateFilePath resolves archive.state_file: "" for disabled, StatePath() when
// unset, the configured path otherwise.
func (c ArchiveConfig) StateFilePath() string {
	switch c.StateFile {
	case "-":
		return ""
	case "":
		return StatePath()
	}
	return c.StateFile
}

// WriteState writes s to path atomically with owner-only permissions.
// Creates the parent directory if needed.
func WriteState(path string, s State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// ReadState reads the state file. Returns os.ErrNotExist if the file does
// not exist.
func ReadState(path string) (State, error) {
	var s State
	_, err := toml.DecodeFile(path, &s)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, os.ErrNotExist
		}
		return State{}, err
	}
	return s, nil
}

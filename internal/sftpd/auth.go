package sftpd

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"
)

const userExtension = "antftp-user"

var errAuthFailed = errors.New("authentication failed")

// Auth holds the login methods the server accepts. With no users and no
// keys every login is accepted anonymously.
type Auth struct {
	// Users maps user names to plaintext passwords or bcrypt hashes.
	Users map[string]string
	Keys  []ssh.PublicKey
}

// Anonymous reports whether no login method is configured.
func (a Auth) Anonymous() bool {
	return len(a.Users) == 0 && len(a.Keys) == 0
}

func (a Auth) apply(cfg *ssh.ServerConfig) {
	if a.Anonymous() {
		cfg.NoClientAuth = true
		return
	}
	if len(a.Users) > 0 {
		cfg.PasswordCallback = a.checkPassword
	}
	if len(a.Keys) > 0 {
		cfg.PublicKeyCallback = a.checkKey
	}
}

func (a Auth) checkPassword(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	want, ok := a.Users[meta.User()]
	if !ok || !passwordMatches(want, password) {
		return nil, errAuthFailed
	}
	return permissions(meta.User()), nil
}

func (a Auth) checkKey(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	presented := key.Marshal()
	for _, k := range a.Keys {
		if bytes.Equal(k.Marshal(), presented) {
			return permissions(meta.User()), nil
		}
	}
	return nil, errAuthFailed
}

func passwordMatches(want string, got []byte) bool {
	if strings.HasPrefix(want, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(want), got) == nil
	}
	return subtle.ConstantTimeCompare([]byte(want), got) == 1
}

func permissions(user string) *ssh.Permissions {
	return &ssh.Permissions{Extensions: map[string]string{userExtension: user}}
}

// authenticatedUser returns the name recorded at login, or "" for an
// anonymous session.
func authenticatedUser(perms *ssh.Permissions) string {
	if perms == nil {
		return ""
	}
	return perms.Extensions[userExtension]
}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file. Unparseable
// lines are skipped.
func LoadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open authorized keys: %w", err)
	}
	defer f.Close()

	var keys []ssh.PublicKey
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, _, _, _, parseErr := ssh.ParseAuthorizedKey(line)
		if parseErr != nil {
			continue
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	return keys, nil
}

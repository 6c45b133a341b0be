package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keychain supplies the database encryption key. Key management belongs to
// the platform's secure key-value store; the engine only consumes the key.
type Keychain interface {
	// DeviceKey returns the hex-encoded 256-bit database key.
	DeviceKey() (string, error)
}

// FileKeychain is the default keychain: a hex key in a 0600 file, generated
// on first use. Platforms with a real secure store supply their own Keychain.
type FileKeychain struct {
	Path string
}

// DeviceKey loads the key, creating it if the file does not exist.
func (k FileKeychain) DeviceKey() (string, error) {
	data, err := os.ReadFile(k.Path)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if len(key) != 64 {
			return "", fmt.Errorf("malformed device key in %s", k.Path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device key: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate device key: %w", err)
	}
	key := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(k.Path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(k.Path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write device key: %w", err)
	}
	return key, nil
}

// StaticKeychain returns a fixed key. Used in tests.
type StaticKeychain string

// DeviceKey implements Keychain.
func (k StaticKeychain) DeviceKey() (string, error) {
	return string(k), nil
}

// Package crypto seals secrets with AES-256-GCM so they can sit in .env
// files encrypted. Sealed values look like SEALED[v1]:base64(nonce+data).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	// KeySize is the AES-256 key length.
	KeySize   = 32
	nonceSize = 12
	prefix    = "SEALED[v"
	// KeyEnv names the version 1 key; later versions use KeyEnv_V2, _V3...
	KeyEnv = "SECRETS_KEY"
)

var (
	ErrInvalidKey     = errors.New("invalid key: must be 32 bytes")
	ErrNotSealed      = errors.New("value is not sealed")
	ErrOpenFailed     = errors.New("cannot open sealed value")
	ErrNoKey          = errors.New("no key loaded")
	ErrUnknownVersion = errors.New("key version not loaded")
)

// Keyring holds every loaded key version. New values are sealed with the
// highest one.
type Keyring struct {
	mu      sync.RWMutex
	keys    map[int][]byte
	current int
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[int][]byte)}
}

// LoadKeyring reads base64 keys from SECRETS_KEY and SECRETS_KEY_V2..V10.
func LoadKeyring() (*Keyring, error) {
	k := NewKeyring()
	for v := 1; v <= 10; v++ {
		name := KeyEnv
		if v > 1 {
			name = fmt.Sprintf("%s_V%d", KeyEnv, v)
		}
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if err := k.Add(v, key); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if k.Current() == 0 {
		return nil, fmt.Errorf("%w: set %s", ErrNoKey, KeyEnv)
	}
	return k, nil
}

// Add registers key as version v.
func (k *Keyring) Add(v int, key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[v] = append([]byte(nil), key...)
	if v > k.current {
		k.current = v
	}
	return nil
}

// Current is the version new values are sealed with, 0 when empty.
func (k *Keyring) Current() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// IsSealed reports whether s carries the sealed prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// Version extracts the key version of a sealed value, 0 if malformed.
func Version(s string) int {
	if !IsSealed(s) {
		return 0
	}
	var v int
	if _, err := fmt.Sscanf(s, prefix+"%d]:", &v); err != nil {
		return 0
	}
	return v
}

// Seal encrypts plaintext with the current key.
func (k *Keyring) Seal(plaintext string) (string, error) {
	k.mu.RLock()
	v := k.current
	key := k.keys[v]
	k.mu.RUnlock()
	if key == nil {
		return "", ErrNoKey
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	data := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("%s%d]:%s", prefix, v, base64.StdEncoding.EncodeToString(data)), nil
}

// Open decrypts a sealed value with the key version it names.
func (k *Keyring) Open(sealed string) (string, error) {
	v := Version(sealed)
	if v == 0 {
		return "", ErrNotSealed
	}
	k.mu.RLock()
	key := k.keys[v]
	k.mu.RUnlock()
	if key == nil {
		return "", fmt.Errorf("%w: v%d", ErrUnknownVersion, v)
	}

	idx := strings.Index(sealed, "]:")
	data, err := base64.StdEncoding.DecodeString(sealed[idx+2:])
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < nonceSize {
		return "", ErrOpenFailed
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// OpenValue returns plain values unchanged and opens sealed ones.
func (k *Keyring) OpenValue(s string) (string, error) {
	if !IsSealed(s) {
		return s, nil
	}
	return k.Open(s)
}

// GenerateKey returns a random base64 key for SECRETS_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

package keystore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLength = 16

	// scrypt parameters, tuned for interactive use on a handheld device.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// FileStore is an encrypted file-backed Store. Each key maps to one file
// under dir; values are sealed with a key derived from the passphrase via
// scrypt and encrypted with XChaCha20-Poly1305. On platforms with a native
// keystore the passphrase is expected to come from it, so the at-rest record
// is never readable without OS-level credentials.
type FileStore struct {
	dir        string
	passphrase []byte
	lock       sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("[NewFileStore] dir is required")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("[NewFileStore] passphrase is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileStore] create dir: %w", err)
	}
	return &FileStore{dir: dir, passphrase: []byte(passphrase)}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	sealed, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[FileStore Get] read %q: %w", key, err)
	}
	value, err := s.open(sealed)
	if err != nil {
		return "", fmt.Errorf("[FileStore Get] unseal %q: %w", key, err)
	}
	return string(value), nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	sealed, err := s.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("[FileStore Set] seal %q: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), sealed, 0o600); err != nil {
		return fmt.Errorf("[FileStore Set] write %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[FileStore Remove] remove %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	// Keys are fixed store names, not user input; hex keeps them filename-safe.
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key)))
}

// seal produces salt || nonce || ciphertext.
func (s *FileStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := append(salt, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func (s *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed record too short")
	}
	salt := sealed[:saltLength]
	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := sealed[saltLength : saltLength+aead.NonceSize()]
	return aead.Open(nil, nonce, sealed[saltLength+aead.NonceSize():], nil)
}

func (s *FileStore) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

package security

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/amirk1998/voice-journal/pkg/errors"
)

// RootKeyIdentifier is the fixed, app-scoped handle for the device root key
const RootKeyIdentifier = "voice-journal.root"

// Keystore is the secure credential store boundary. Implementations must
// survive restarts and namespace entries per app.
type Keystore interface {
	Save(identifier string, key []byte) error
	Get(identifier string) ([]byte, error)
	Delete(identifier string) error
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FileKeystore stores key material as base64 in per-identifier files under
// a 0700 directory. Stands in for the OS keychain behind the Keystore
// interface.
type FileKeystore struct {
	dir string
	mu  sync.Mutex
}

// NewFileKeystore creates the keystore directory if needed
func NewFileKeystore(dir string) (*FileKeystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return &FileKeystore{dir: dir}, nil
}

func (ks *FileKeystore) path(identifier string) (string, error) {
	if !identifierRegex.MatchString(identifier) {
		return "", errors.ErrInvalidInput
	}
	return filepath.Join(ks.dir, identifier+".key"), nil
}

// Save persists key material under the identifier, replacing any existing entry
func (ks *FileKeystore) Save(identifier string, key []byte) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	p, err := ks.path(identifier)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrKeystoreFailure, err)
	}
	return nil
}

// Get retrieves key material; returns ErrKeyNotFound on a missing entry,
// which callers treat as recoverable by re-deriving from PIN + salt.
func (ks *FileKeystore) Get(identifier string) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	p, err := ks.path(identifier)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrKeystoreFailure, err)
	}

	key, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt entry", errors.ErrKeystoreFailure)
	}
	return key, nil
}

// Delete removes an entry; deleting a missing entry is not an error
func (ks *FileKeystore) Delete(identifier string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	p, err := ks.path(identifier)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", errors.ErrKeystoreFailure, err)
	}
	return nil
}

// GenerateRootKey returns the device root key for base encryption, creating
// and persisting it on first use. Subsequent calls always return the stored
// key: regenerating would orphan all previously base-encrypted content.
func GenerateRootKey(ks Keystore) ([]byte, error) {
	existing, err := ks.Get(RootKeyIdentifier)
	if err == nil {
		if len(existing) != KeyLength {
			return nil, errors.ErrInvalidKey
		}
		return existing, nil
	}
	if err != errors.ErrKeyNotFound {
		return nil, err
	}

	key, err := GenerateContentKey()
	if err != nil {
		return nil, err
	}

	if err := ks.Save(RootKeyIdentifier, key); err != nil {
		return nil, err
	}
	return key, nil
}

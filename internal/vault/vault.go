package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/amirk1998/voice-journal/internal/security"
)

// Well-known subdirectories under the media root
const (
	RecordingsDir        = "Recordings"
	BaseEncryptedDir     = "BaseEncrypted"
	EncryptedFilesDir    = "EncryptedFiles"
	TempDecryptedDir     = "TempDecrypted"
	BaseTempDecryptedDir = "BaseTempDecrypted"
)

// File suffixes per encryption layer
const (
	BaseSuffix = ".baseenc"
	TagSuffix  = ".encrypted"
)

// Vault manages audio ciphertext on disk. Encrypt and decrypt always write
// to a new path; a failed write never destroys the source.
type Vault struct {
	root string
}

// New creates the media directory tree with secure permissions
func New(root string) (*Vault, error) {
	for _, dir := range []string{
		RecordingsDir,
		BaseEncryptedDir,
		EncryptedFilesDir,
		TempDecryptedDir,
		BaseTempDecryptedDir,
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0700); err != nil {
			return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
		}
	}
	return &Vault{root: root}, nil
}

// Root returns the media root directory
func (v *Vault) Root() string {
	return v.root
}

// SaveRecording stores a new plaintext recording and returns its path
func (v *Vault) SaveRecording(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid recording name")
	}

	path := filepath.Join(v.root, RecordingsDir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}
	return path, nil
}

// EncryptFileBase encrypts whatever is at srcPath under the root key into
// BaseEncrypted/ with the .baseenc suffix
func (v *Vault) EncryptFileBase(srcPath string, key []byte) (string, error) {
	return v.encryptFile(srcPath, key, BaseEncryptedDir, BaseSuffix)
}

// EncryptFileTag encrypts whatever is at srcPath under a tag content key
// into EncryptedFiles/ with the .encrypted suffix. When the source is
// already base-layer ciphertext the result is encrypted-then-encrypted.
func (v *Vault) EncryptFileTag(srcPath string, key []byte) (string, error) {
	return v.encryptFile(srcPath, key, EncryptedFilesDir, TagSuffix)
}

func (v *Vault) encryptFile(srcPath string, key []byte, subdir, suffix string) (string, error) {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read source file: %w", err)
	}

	c, err := security.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext, err := c.EncryptBytes(plaintext)
	if err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(srcPath), suffix) + suffix
	dstPath := filepath.Join(v.root, subdir, name)
	if err := os.WriteFile(dstPath, ciphertext, 0600); err != nil {
		return "", fmt.Errorf("failed to write encrypted file: %w", err)
	}

	return dstPath, nil
}

// DecryptBaseToTemp decrypts base-layer ciphertext into BaseTempDecrypted/
func (v *Vault) DecryptBaseToTemp(srcPath string, key []byte) (string, error) {
	return v.decryptToTemp(srcPath, key, BaseTempDecryptedDir)
}

// DecryptTagToTemp decrypts tag-layer ciphertext into TempDecrypted/
func (v *Vault) DecryptTagToTemp(srcPath string, key []byte) (string, error) {
	return v.decryptToTemp(srcPath, key, TempDecryptedDir)
}

// decryptToTemp writes plaintext to a fresh random name, leaving the
// ciphertext at rest untouched. Temp files are session state; the session
// owns their removal.
func (v *Vault) decryptToTemp(srcPath string, key []byte, subdir string) (string, error) {
	ciphertext, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read encrypted file: %w", err)
	}

	c, err := security.NewCipher(key)
	if err != nil {
		return "", err
	}

	plaintext, err := c.DecryptBytes(ciphertext)
	if err != nil {
		return "", err
	}

	dstPath := filepath.Join(v.root, subdir, uuid.NewString()+".m4a")
	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return "", fmt.Errorf("failed to write decrypted file: %w", err)
	}

	return dstPath, nil
}

// DecryptFileTo decrypts ciphertext at srcPath and writes the plaintext to
// dstPath, restoring a file to a known location. The ciphertext source is
// left in place for the caller to remove.
func (v *Vault) DecryptFileTo(srcPath, dstPath string, key []byte) error {
	ciphertext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read encrypted file: %w", err)
	}

	c, err := security.NewCipher(key)
	if err != nil {
		return err
	}

	plaintext, err := c.DecryptBytes(ciphertext)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dstPath, plaintext, 0600); err != nil {
		return fmt.Errorf("failed to write decrypted file: %w", err)
	}
	return nil
}

// Remove deletes a file, refusing paths outside the media root
func (v *Vault) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(v.root)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return fmt.Errorf("path outside media root")
	}

	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

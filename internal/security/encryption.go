package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// KeyLength is the symmetric key size used throughout (AES-256)
const KeyLength = 32

// AsyncWaitTimeout bounds how long save paths wait for background
// encryption of large payloads before giving up and keeping plaintext.
const AsyncWaitTimeout = 3 * time.Second

type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher creates an AES-256-GCM cipher bound to the given key
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("key must be %d bytes for AES-256", KeyLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{gcm: gcm}, nil
}

// EncryptBytes encrypts plaintext, returning nonce-prefixed ciphertext
func (c *Cipher) EncryptBytes(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes decrypts nonce-prefixed ciphertext produced by EncryptBytes.
// Fails cleanly on truncated or tampered input, never returns partial output.
func (c *Cipher) DecryptBytes(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, encryptedData := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := c.gcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// EncryptString encrypts a UTF-8 string and returns base64 ciphertext
// suitable for a text column. Empty input round-trips as empty.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	data, err := c.EncryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecryptString decrypts base64 ciphertext produced by EncryptString
func (c *Cipher) DecryptString(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	plaintext, err := c.DecryptBytes(data)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// AsyncResult carries the outcome of a background encryption
type AsyncResult struct {
	Ciphertext string
	Err        error
}

// EncryptStringAsync encrypts a large payload off the calling goroutine.
// The returned channel receives exactly one result.
func (c *Cipher) EncryptStringAsync(plaintext string) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		ct, err := c.EncryptString(plaintext)
		ch <- AsyncResult{Ciphertext: ct, Err: err}
	}()
	return ch
}

// AwaitEncrypt waits for a background encryption up to timeout. The second
// return is false when the wait timed out; callers on the save path treat
// that as "keep plaintext, warn" rather than failing the save.
func AwaitEncrypt(ch <-chan AsyncResult, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Ciphertext, true, res.Err
	case <-timer.C:
		return "", false, nil
	}
}

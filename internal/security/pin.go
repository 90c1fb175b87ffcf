package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommendations)
	argon2Time      = 3
	argon2Memory    = 64 * 1024 // 64 MB
	argon2Threads   = 2
	argon2KeyLength = 32

	// SaltLength is the per-tag salt size
	SaltLength = 16
)

// GenerateSalt returns a fresh random salt for a tag gate
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// HashPin hashes a PIN with the given salt using Argon2id and returns the
// encoded hash with its parameters, for later verification
func HashPin(pin string, salt []byte) (string, error) {
	if len(salt) == 0 {
		return "", fmt.Errorf("salt is required")
	}

	hash := argon2.IDKey(
		[]byte(pin),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLength,
	)

	encodedHash := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encodedHash, nil
}

// VerifyPin checks if a PIN matches the encoded hash
func VerifyPin(pin, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("failed to parse version: %w", err)
	}

	if version != argon2.Version {
		return false, fmt.Errorf("incompatible argon2 version")
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	testHash := argon2.IDKey(
		[]byte(pin),
		salt,
		time,
		memory,
		threads,
		uint32(len(hash)),
	)

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(hash, testHash) == 1, nil
}

// DeriveKey derives the PIN-bound KEK from (pin, salt). Deterministic for
// the same pair, so the key hierarchy stays recoverable when the keystore
// entry is lost.
func DeriveKey(pin string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(pin),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLength,
	)
}

// GenerateContentKey returns a fresh random symmetric key
func GenerateContentKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyIdentifier derives a stable, collision-resistant keystore handle from a
// tag's persistent identity. Independent of the tag's display name, so
// renames never orphan keys.
func KeyIdentifier(seed string) string {
	sum := sha256.Sum256([]byte("voice-journal.tag." + seed))
	return "tag-key-" + hex.EncodeToString(sum[:16])
}

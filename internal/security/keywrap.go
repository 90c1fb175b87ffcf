package security

import (
	"encoding/base64"
	"fmt"
)

// WrapKey encrypts a content key under a PIN-derived KEK and returns a
// base64 blob safe to persist alongside the tag. The wrap is what keeps
// PIN changes cheap: rewrapping rotates the KEK without touching content.
func WrapKey(contentKey []byte, kek []byte) (string, error) {
	if len(contentKey) != KeyLength {
		return "", fmt.Errorf("content key must be %d bytes", KeyLength)
	}

	c, err := NewCipher(kek)
	if err != nil {
		return "", err
	}

	wrapped, err := c.EncryptBytes(contentKey)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey reverses WrapKey. Fails on a wrong KEK (wrong PIN) without
// producing garbage key material.
func UnwrapKey(wrapped string, kek []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wrapped key: %w", err)
	}

	c, err := NewCipher(kek)
	if err != nil {
		return nil, err
	}

	key, err := c.DecryptBytes(data)
	if err != nil {
		return nil, err
	}

	if len(key) != KeyLength {
		return nil, fmt.Errorf("unwrapped key has invalid length")
	}
	return key, nil
}

package models

import (
	"time"
)

type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsEncrypted bool   `json:"is_encrypted"`

	// Gate credentials, set only while IsEncrypted is true. PinHash is an
	// argon2id encoded hash, never the PIN itself. WrappedKey is the tag's
	// content key wrapped under the PIN-derived KEK; it survives keystore
	// loss and makes PIN changes a rewrap instead of a content re-encrypt.
	PinHash       *string `json:"-"`
	PinSalt       *string `json:"-"` // base64
	KeyIdentifier *string `json:"-"`
	WrappedKey    *string `json:"-"` // base64

	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GateLocked reports whether the tag gate is temporarily locked out
func (t *Tag) GateLocked(now time.Time) bool {
	return t.LockedUntil != nil && now.Before(*t.LockedUntil)
}

package models

import (
	"time"
)

// EncryptionState is the composite content state of a journal entry.
type EncryptionState int

const (
	StatePlaintext EncryptionState = iota
	StateBaseOnly
	StateDual
	// StateTagOnly should not occur in normal flow: entries are
	// base-encrypted by default before a tag gate can be applied.
	StateTagOnly
)

func (s EncryptionState) String() string {
	switch s {
	case StatePlaintext:
		return "plaintext"
	case StateBaseOnly:
		return "base-only"
	case StateDual:
		return "dual"
	case StateTagOnly:
		return "tag-only"
	}
	return "unknown"
}

type JournalEntry struct {
	ID                     string     `json:"id"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	IsLocked               bool       `json:"is_locked"` // UI app-lock, orthogonal to content encryption
	IsBaseEncrypted        bool       `json:"is_base_encrypted"`
	EncryptedTagID         *string    `json:"encrypted_tag_id,omitempty"`
	BaseEncryptedAudioPath *string    `json:"base_encrypted_audio_path,omitempty"`

	// Hydrated relationships, nil unless loaded
	Audio         *AudioRecording `json:"audio,omitempty"`
	Transcription *Transcription  `json:"transcription,omitempty"`
	Tags          []*Tag          `json:"tags,omitempty"`
}

// EncryptionState derives the composite state from the persisted flags
func (e *JournalEntry) EncryptionState() EncryptionState {
	switch {
	case e.IsBaseEncrypted && e.EncryptedTagID != nil:
		return StateDual
	case e.IsBaseEncrypted:
		return StateBaseOnly
	case e.EncryptedTagID != nil:
		return StateTagOnly
	}
	return StatePlaintext
}

// HasEncryptedContent reports whether any encryption layer is active
func (e *JournalEntry) HasEncryptedContent() bool {
	return e.IsBaseEncrypted || e.EncryptedTagID != nil
}

// NeedsDualDecryption reports whether both layers must be unwound to reach
// plaintext. Tag encryption wraps whatever bytes base encryption left on
// disk, so the tag layer must be removed first.
func (e *JournalEntry) NeedsDualDecryption() bool {
	return e.IsBaseEncrypted && e.EncryptedTagID != nil
}

type ListEntriesFilters struct {
	TagID     string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

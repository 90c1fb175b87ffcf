package service

import (
	"context"
	"fmt"

	"github.com/amirk1998/voice-journal/internal/audit"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/internal/ratelimit"
	"github.com/amirk1998/voice-journal/internal/repository"
	"github.com/amirk1998/voice-journal/internal/security"
	"github.com/amirk1998/voice-journal/internal/session"
	"github.com/amirk1998/voice-journal/internal/vault"
	"github.com/amirk1998/voice-journal/pkg/errors"
	"github.com/amirk1998/voice-journal/pkg/validator"
)

// EntryService orchestrates the content encryption state machine on journal
// entries: base layer under the device root key, tag layer under a PIN-gated
// content key, and the dual state where tag encryption wraps base ciphertext.
type EntryService struct {
	entryRepo   *repository.EntryRepository
	tagRepo     *repository.TagRepository
	tags        *TagService
	vault       *vault.Vault
	session     *session.Session
	rootKey     []byte
	validator   *validator.Validator
	rateLimiter *ratelimit.RateLimiter
	auditLogger *audit.Logger
}

// NewEntryService creates a new entry service
func NewEntryService(
	entryRepo *repository.EntryRepository,
	tagRepo *repository.TagRepository,
	tags *TagService,
	v *vault.Vault,
	sess *session.Session,
	rootKey []byte,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger *audit.Logger,
) *EntryService {
	return &EntryService{
		entryRepo:   entryRepo,
		tagRepo:     tagRepo,
		tags:        tags,
		vault:       v,
		session:     sess,
		rootKey:     rootKey,
		validator:   validator.New(),
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
	}
}

// CreateEntry creates a new journal entry. Base encryption is the default
// for every entry; actual field encryption is deferred until content exists.
func (s *EntryService) CreateEntry(ctx context.Context) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{}
	if err := s.entryRepo.Create(entry); err != nil {
		return nil, err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		Action:   "ENTRY_CREATED",
		Resource: "entries",
		Success:  true,
	})

	return entry, nil
}

// GetEntry loads an entry with audio, transcription and tags
func (s *EntryService) GetEntry(id string) (*models.JournalEntry, error) {
	return s.entryRepo.GetByID(id)
}

// ListEntries lists entries with filters
func (s *EntryService) ListEntries(filters models.ListEntriesFilters) ([]*models.JournalEntry, error) {
	return s.entryRepo.List(filters)
}

// AttachAudio stores a new recording and links it to the entry
func (s *EntryService) AttachAudio(ctx context.Context, entry *models.JournalEntry, fileName string, data []byte, duration float64) error {
	path, err := s.vault.SaveRecording(fileName, data)
	if err != nil {
		return err
	}

	audioRec := &models.AudioRecording{
		EntryID:  entry.ID,
		FilePath: path,
		Duration: duration,
		FileSize: int64(len(data)),
	}

	if err := s.entryRepo.SaveAudio(audioRec); err != nil {
		return err
	}

	entry.Audio = audioRec
	return nil
}

// SetTranscriptionField updates one transcription field's plaintext slot.
// The paired ciphertext slot is cleared so the pre-commit hook sees the
// edit and re-encrypts it; a stale ciphertext must never shadow new text.
func (s *EntryService) SetTranscriptionField(ctx context.Context, entry *models.JournalEntry, field, text string) error {
	if err := s.validator.ValidateTranscript(text); err != nil {
		return err
	}

	if entry.Transcription == nil {
		entry.Transcription = &models.Transcription{EntryID: entry.ID}
	}

	found := false
	for _, p := range entry.Transcription.FieldPairs() {
		if p.Name == field {
			t := text
			*p.Plaintext = &t
			*p.Ciphertext = nil
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: unknown transcription field %q", errors.ErrInvalidInput, field)
	}

	return s.entryRepo.SaveTranscription(ctx, entry, entry.Transcription)
}

// AddTag adds plain tag membership
func (s *EntryService) AddTag(entry *models.JournalEntry, tag *models.Tag) error {
	return s.entryRepo.AddTag(entry.ID, tag.ID)
}

// ApplyBaseEncryption applies the always-on base layer under the device
// root key. Idempotent: already base-encrypted entries succeed immediately,
// and fields whose ciphertext slot is populated are skipped. On failure,
// partial progress is retained; each field's encryption is independently
// idempotent and safe to resume.
func (s *EntryService) ApplyBaseEncryption(ctx context.Context, entry *models.JournalEntry) error {
	if entry.IsBaseEncrypted {
		return nil
	}

	cipher, err := security.NewCipher(s.rootKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}

	var failures []string

	if entry.Audio != nil && entry.BaseEncryptedAudioPath == nil {
		encPath, err := s.vault.EncryptFileBase(entry.Audio.FilePath, s.rootKey)
		if err != nil {
			failures = append(failures, fmt.Sprintf("audio: %v", err))
		} else {
			plainPath := entry.Audio.FilePath
			if entry.Audio.OriginalFilePath == nil {
				entry.Audio.OriginalFilePath = &plainPath
			}
			entry.Audio.FilePath = encPath
			entry.BaseEncryptedAudioPath = &encPath

			if err := s.entryRepo.SaveAudio(entry.Audio); err != nil {
				return err
			}
			// Plaintext source is only removed once the ciphertext is on disk
			if err := s.vault.Remove(plainPath); err != nil {
				failures = append(failures, fmt.Sprintf("audio cleanup: %v", err))
			}
		}
	}

	if entry.Transcription != nil {
		for _, p := range entry.Transcription.FieldPairs() {
			if *p.Plaintext == nil || *p.Ciphertext != nil {
				continue
			}
			ct, err := cipher.EncryptString(**p.Plaintext)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", p.Name, err))
				continue
			}
			*p.Ciphertext = &ct
			*p.Plaintext = nil
		}

		if err := s.entryRepo.SaveTranscription(ctx, entry, entry.Transcription); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelError,
			EntryID:  entry.ID,
			Action:   "BASE_ENCRYPTION_FAILED",
			Resource: "entries",
			Success:  false,
			ErrorMsg: fmt.Sprintf("%v", failures),
		})
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, failures)
	}

	entry.IsBaseEncrypted = true
	if err := s.entryRepo.Update(entry); err != nil {
		return err
	}

	s.session.ForgetBase(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		Action:   "BASE_ENCRYPTION_APPLIED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// DecryptBaseContent unwinds the base layer for display. Audio is decrypted
// to a temp file recorded in the session side table; the ciphertext at rest
// is never touched. Decrypted text fields are populated in memory only.
// No-op success when the entry is not base-encrypted.
func (s *EntryService) DecryptBaseContent(ctx context.Context, entry *models.JournalEntry) error {
	if !entry.IsBaseEncrypted {
		return nil
	}

	cipher, err := security.NewCipher(s.rootKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}

	if entry.Audio != nil && entry.BaseEncryptedAudioPath != nil {
		src := *entry.BaseEncryptedAudioPath
		if _, ok := s.session.TempPath(src); !ok {
			tempPath, err := s.vault.DecryptBaseToTemp(src, s.rootKey)
			if err != nil {
				s.auditLogger.Log(&audit.Event{
					Level:    audit.LevelError,
					EntryID:  entry.ID,
					Action:   "BASE_DECRYPTION_FAILED",
					Resource: "entries",
					Success:  false,
					ErrorMsg: err.Error(),
				})
				return fmt.Errorf("%w: audio: %v", errors.ErrDecryptionFailed, err)
			}
			s.session.SetTempPath(src, tempPath)
		}
	}

	if entry.Transcription != nil {
		for _, p := range entry.Transcription.FieldPairs() {
			if *p.Plaintext != nil || *p.Ciphertext == nil {
				continue
			}
			// A field that fails here is ciphertext under the tag key, not
			// the root key; it stays encrypted until the tag layer is unwound.
			pt, err := cipher.DecryptString(**p.Ciphertext)
			if err != nil {
				continue
			}
			*p.Plaintext = &pt
		}
	}

	s.session.MarkBaseDecrypted(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		Action:   "BASE_CONTENT_DECRYPTED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// ApplyEncryptedTagWithPin attaches an encrypted tag as the entry's gate
// and immediately encrypts content under its key. Both sides of the
// bookkeeping are updated: plain tag membership and the gate relationship.
func (s *EntryService) ApplyEncryptedTagWithPin(ctx context.Context, entry *models.JournalEntry, tag *models.Tag, pin string) error {
	if !tag.IsEncrypted {
		return errors.ErrTagNotEncrypted
	}

	ok, err := s.tags.VerifyPin(tag, pin)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrInvalidPin
	}

	// Dual bookkeeping: an entry gated by a tag must also be a plain member
	if err := s.entryRepo.AddTag(entry.ID, tag.ID); err != nil {
		return err
	}

	entry.EncryptedTagID = &tag.ID
	if err := s.entryRepo.Update(entry); err != nil {
		return err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		TagID:    tag.ID,
		Action:   "ENCRYPTED_TAG_APPLIED",
		Resource: "entries",
		Success:  true,
	})

	return s.EncryptContent(ctx, entry, pin)
}

// EncryptContent encrypts the entry's content under its gate tag's key.
// The audio file is wrapped as-is: when the base layer is active the tag
// ciphertext contains base ciphertext, not re-derived plaintext. Text
// fields re-encrypt whatever is currently plaintext on every call.
func (s *EntryService) EncryptContent(ctx context.Context, entry *models.JournalEntry, pin string) error {
	if entry.EncryptedTagID == nil {
		return errors.ErrNoEncryptedTag
	}

	if err := s.rateLimiter.CheckLimit("entry_encrypt:" + entry.ID); err != nil {
		return err
	}

	tag, err := s.tagRepo.GetByID(*entry.EncryptedTagID)
	if err != nil {
		return err
	}

	key, err := s.tags.GetEncryptionKey(tag, pin)
	if err != nil {
		return err
	}

	cipher, err := security.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}

	if entry.Audio != nil && !entry.Audio.IsEncrypted {
		srcPath := entry.Audio.FilePath
		encPath, err := s.vault.EncryptFileTag(srcPath, key)
		if err != nil {
			s.auditLogger.Log(&audit.Event{
				Level:    audit.LevelError,
				EntryID:  entry.ID,
				TagID:    tag.ID,
				Action:   "TAG_ENCRYPTION_FAILED",
				Resource: "entries",
				Success:  false,
				ErrorMsg: err.Error(),
			})
			return fmt.Errorf("%w: audio: %v", errors.ErrEncryptionFailed, err)
		}

		// The very first plaintext path survives across layers
		if entry.Audio.OriginalFilePath == nil {
			entry.Audio.OriginalFilePath = &srcPath
		}

		// A plaintext source is removed after wrapping; base ciphertext is
		// kept, it is the at-rest source for base-layer decryption.
		if entry.BaseEncryptedAudioPath == nil || srcPath != *entry.BaseEncryptedAudioPath {
			if err := s.vault.Remove(srcPath); err != nil {
				return err
			}
		}

		entry.Audio.FilePath = encPath
		entry.Audio.IsEncrypted = true
		if err := s.entryRepo.SaveAudio(entry.Audio); err != nil {
			return err
		}
	}

	if entry.Transcription != nil {
		for _, p := range entry.Transcription.FieldPairs() {
			if *p.Plaintext == nil {
				continue
			}
			ct, err := cipher.EncryptString(**p.Plaintext)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errors.ErrEncryptionFailed, p.Name, err)
			}
			*p.Ciphertext = &ct
			*p.Plaintext = nil
		}

		if err := s.entryRepo.SaveTranscription(ctx, entry, entry.Transcription); err != nil {
			return err
		}
	}

	s.session.ForgetTag(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		TagID:    tag.ID,
		Action:   "TAG_CONTENT_ENCRYPTED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// DecryptContent unwinds the tag layer for display. Audio goes to a temp
// file via the session side table; text fields are populated in memory.
// When the entry is dual-encrypted the audio temp file still holds base
// ciphertext and DecryptBaseContent completes the unwind.
func (s *EntryService) DecryptContent(ctx context.Context, entry *models.JournalEntry, pin string) error {
	if entry.EncryptedTagID == nil {
		return errors.ErrNoEncryptedTag
	}

	tag, err := s.tagRepo.GetByID(*entry.EncryptedTagID)
	if err != nil {
		return err
	}

	key, err := s.tags.GetEncryptionKey(tag, pin)
	if err != nil {
		return err
	}

	cipher, err := security.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}

	if entry.Audio != nil && entry.Audio.IsEncrypted {
		if _, ok := s.session.TempPath(entry.Audio.FilePath); !ok {
			tempPath, err := s.vault.DecryptTagToTemp(entry.Audio.FilePath, key)
			if err != nil {
				s.auditLogger.Log(&audit.Event{
					Level:    audit.LevelError,
					EntryID:  entry.ID,
					TagID:    tag.ID,
					Action:   "TAG_DECRYPTION_FAILED",
					Resource: "entries",
					Success:  false,
					ErrorMsg: err.Error(),
				})
				return fmt.Errorf("%w: audio: %v", errors.ErrDecryptionFailed, err)
			}
			s.session.SetTempPath(entry.Audio.FilePath, tempPath)
		}
	}

	if entry.Transcription != nil {
		for _, p := range entry.Transcription.FieldPairs() {
			if *p.Plaintext != nil || *p.Ciphertext == nil {
				continue
			}
			// Fields that fail here belong to the base layer
			pt, err := cipher.DecryptString(**p.Ciphertext)
			if err != nil {
				continue
			}
			*p.Plaintext = &pt
		}
	}

	s.session.MarkTagDecrypted(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		TagID:    tag.ID,
		Action:   "TAG_CONTENT_DECRYPTED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// RemoveEncryptedTag detaches the gate tag. The PIN is required because the
// tag layer is unwound at rest first; detaching while content is still tag
// ciphertext would orphan it permanently, so that ordering is enforced here
// rather than left to caller discipline.
func (s *EntryService) RemoveEncryptedTag(ctx context.Context, entry *models.JournalEntry, pin string) error {
	if entry.EncryptedTagID == nil {
		return errors.ErrNoEncryptedTag
	}

	tag, err := s.tagRepo.GetByID(*entry.EncryptedTagID)
	if err != nil {
		return err
	}

	key, err := s.tags.GetEncryptionKey(tag, pin)
	if err != nil {
		return err
	}

	cipher, err := security.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}

	if entry.Audio != nil && entry.Audio.IsEncrypted {
		encPath := entry.Audio.FilePath

		if entry.BaseEncryptedAudioPath != nil {
			// Dual state: the base ciphertext is still at rest, fall back to it
			entry.Audio.FilePath = *entry.BaseEncryptedAudioPath
		} else {
			restorePath := entry.Audio.FilePath
			if entry.Audio.OriginalFilePath != nil {
				restorePath = *entry.Audio.OriginalFilePath
			}
			if err := s.vault.DecryptFileTo(encPath, restorePath, key); err != nil {
				return fmt.Errorf("%w: audio: %v", errors.ErrDecryptionFailed, err)
			}
			entry.Audio.FilePath = restorePath
		}

		entry.Audio.IsEncrypted = false
		if err := s.entryRepo.SaveAudio(entry.Audio); err != nil {
			return err
		}

		s.session.DropTempPath(encPath)
		if err := s.vault.Remove(encPath); err != nil {
			return err
		}
	}

	if entry.Transcription != nil {
		// Fields edited while unlocked carry tag-key ciphertext even on a
		// base-encrypted entry. Unwinding the tag layer on such an entry must
		// land them back on base ciphertext, never plaintext: the base layer
		// stays active and its idempotence guard would skip a plaintext field
		// forever.
		var baseCipher *security.Cipher
		if entry.IsBaseEncrypted {
			baseCipher, err = security.NewCipher(s.rootKey)
			if err != nil {
				return fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
			}
		}

		for _, p := range entry.Transcription.FieldPairs() {
			if *p.Ciphertext == nil {
				continue
			}
			// Base-layer fields fail under the tag key and stay encrypted
			pt, err := cipher.DecryptString(**p.Ciphertext)
			if err != nil {
				continue
			}
			if baseCipher != nil {
				baseCT, err := baseCipher.EncryptString(pt)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", errors.ErrEncryptionFailed, p.Name, err)
				}
				*p.Ciphertext = &baseCT
				*p.Plaintext = nil
				continue
			}
			*p.Plaintext = &pt
			*p.Ciphertext = nil
		}
	}

	// Detach before saving so the pre-commit hook no longer sees a gate
	tagID := *entry.EncryptedTagID
	entry.EncryptedTagID = nil
	if err := s.entryRepo.Update(entry); err != nil {
		return err
	}

	if entry.Transcription != nil {
		if err := s.entryRepo.SaveTranscription(ctx, entry, entry.Transcription); err != nil {
			return err
		}
	}

	if err := s.entryRepo.RemoveTag(entry.ID, tagID); err != nil {
		return err
	}

	s.session.ForgetTag(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		TagID:    tagID,
		Action:   "ENCRYPTED_TAG_REMOVED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// DeleteEntry deletes an entry and all of its on-disk ciphertext
func (s *EntryService) DeleteEntry(ctx context.Context, entry *models.JournalEntry) error {
	if entry.Audio != nil {
		s.session.DropTempPath(entry.Audio.FilePath)

		paths := []string{entry.Audio.FilePath}
		if entry.BaseEncryptedAudioPath != nil {
			s.session.DropTempPath(*entry.BaseEncryptedAudioPath)
			paths = append(paths, *entry.BaseEncryptedAudioPath)
		}
		if entry.Audio.OriginalFilePath != nil {
			paths = append(paths, *entry.Audio.OriginalFilePath)
		}

		for _, p := range paths {
			if err := s.vault.Remove(p); err != nil {
				return err
			}
		}
	}

	if err := s.entryRepo.Delete(entry.ID); err != nil {
		return err
	}

	s.session.ForgetBase(entry.ID)
	s.session.ForgetTag(entry.ID)

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		EntryID:  entry.ID,
		Action:   "ENTRY_DELETED",
		Resource: "entries",
		Success:  true,
	})

	return nil
}

// IsDecrypted reports tag-layer session membership for an entry
func (s *EntryService) IsDecrypted(entryID string) bool {
	return s.session.IsTagDecrypted(entryID)
}

// IsBaseDecrypted reports base-layer session membership for an entry
func (s *EntryService) IsBaseDecrypted(entryID string) bool {
	return s.session.IsBaseDecrypted(entryID)
}

// ClearAllDecryptedEntries forgets all unlock state and removes temp
// plaintext files. The app-lock action.
func (s *EntryService) ClearAllDecryptedEntries() {
	s.session.ClearAll()
}

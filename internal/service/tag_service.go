package service

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/amirk1998/voice-journal/internal/audit"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/internal/ratelimit"
	"github.com/amirk1998/voice-journal/internal/repository"
	"github.com/amirk1998/voice-journal/internal/security"
	"github.com/amirk1998/voice-journal/pkg/errors"
	"github.com/amirk1998/voice-journal/pkg/validator"
)

const (
	maxFailedAttempts = 5
	gateLockDuration  = 15 * time.Minute
)

// TagService is the tag encryption gate: it owns a tag's credential state
// (PIN hash, salt, key identifier, wrapped content key) and nothing else.
// Cross-entity effects like cascade decryption belong to the orchestrator.
type TagService struct {
	tagRepo     *repository.TagRepository
	keystore    security.Keystore
	validator   *validator.Validator
	rateLimiter *ratelimit.RateLimiter
	auditLogger *audit.Logger
}

// NewTagService creates a new tag service
func NewTagService(
	tagRepo *repository.TagRepository,
	keystore security.Keystore,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger *audit.Logger,
) *TagService {
	return &TagService{
		tagRepo:     tagRepo,
		keystore:    keystore,
		validator:   validator.New(),
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
	}
}

// CreateTag creates a plain (non-encrypted) tag
func (s *TagService) CreateTag(name string) (*models.Tag, error) {
	name = s.validator.SanitizeString(name)
	if err := s.validator.ValidateTagName(name); err != nil {
		return nil, err
	}

	tag := &models.Tag{Name: name}
	if err := s.tagRepo.Create(tag); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	return tag, nil
}

// GetTag retrieves a tag by name
func (s *TagService) GetTag(name string) (*models.Tag, error) {
	return s.tagRepo.GetByName(name)
}

// ListTags lists all tags
func (s *TagService) ListTags() ([]*models.Tag, error) {
	return s.tagRepo.List()
}

// SetEncryptionPin turns a tag into an encryption gate. A fresh random
// content key is generated and cached in the keystore; the PIN derives a
// KEK that wraps it. Nothing on the tag is mutated unless key storage
// succeeds, so a failure never leaves the gate half-configured.
func (s *TagService) SetEncryptionPin(tag *models.Tag, pin string) error {
	if err := s.validator.ValidatePin(pin); err != nil {
		return err
	}

	if tag.IsEncrypted {
		return fmt.Errorf("%w: tag is already encrypted", errors.ErrInvalidInput)
	}

	salt, err := security.GenerateSalt()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	pinHash, err := security.HashPin(pin, salt)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	contentKey, err := security.GenerateContentKey()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	kek := security.DeriveKey(pin, salt)
	wrapped, err := security.WrapKey(contentKey, kek)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	keyID := security.KeyIdentifier(tag.ID)
	if err := s.keystore.Save(keyID, contentKey); err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelError,
			TagID:    tag.ID,
			Action:   "TAG_ENCRYPTION_SETUP_FAILED",
			Resource: "tag_gate",
			Success:  false,
			ErrorMsg: err.Error(),
		})
		return err
	}

	saltB64 := base64.StdEncoding.EncodeToString(salt)
	tag.IsEncrypted = true
	tag.PinHash = &pinHash
	tag.PinSalt = &saltB64
	tag.KeyIdentifier = &keyID
	tag.WrappedKey = &wrapped
	tag.FailedAttempts = 0
	tag.LockedUntil = nil

	if err := s.tagRepo.Update(tag); err != nil {
		// Roll back the stored key so a failed commit leaves no trace
		s.keystore.Delete(keyID)
		tag.IsEncrypted = false
		tag.PinHash = nil
		tag.PinSalt = nil
		tag.KeyIdentifier = nil
		tag.WrappedKey = nil
		return err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		TagID:    tag.ID,
		Action:   "TAG_ENCRYPTION_ENABLED",
		Resource: "tag_gate",
		Success:  true,
	})

	return nil
}

// VerifyPin checks a PIN against the tag gate. Always false for a
// non-encrypted tag. A wrong PIN is a normal mismatch, not an internal
// error; repeated failures lock the gate temporarily.
func (s *TagService) VerifyPin(tag *models.Tag, pin string) (bool, error) {
	if !tag.IsEncrypted || tag.PinHash == nil || tag.PinSalt == nil {
		return false, nil
	}

	if err := s.rateLimiter.CheckLimit("tag_unlock:" + tag.ID); err != nil {
		return false, err
	}

	now := time.Now()
	if tag.GateLocked(now) {
		return false, errors.ErrTagGateLocked
	}

	ok, err := security.VerifyPin(pin, *tag.PinHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}

	if !ok {
		tag.FailedAttempts++
		if tag.FailedAttempts >= maxFailedAttempts {
			lockedUntil := now.Add(gateLockDuration)
			tag.LockedUntil = &lockedUntil
			tag.FailedAttempts = 0
		}
		if err := s.tagRepo.Update(tag); err != nil {
			return false, err
		}

		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelWarning,
			TagID:    tag.ID,
			Action:   "TAG_UNLOCK",
			Resource: "tag_gate",
			Success:  false,
			ErrorMsg: "incorrect PIN",
		})
		return false, nil
	}

	if tag.FailedAttempts != 0 || tag.LockedUntil != nil {
		tag.FailedAttempts = 0
		tag.LockedUntil = nil
		if err := s.tagRepo.Update(tag); err != nil {
			return false, err
		}
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		TagID:    tag.ID,
		Action:   "TAG_UNLOCK",
		Resource: "tag_gate",
		Success:  true,
	})

	return true, nil
}

// GetEncryptionKey returns the tag's content key after verifying the PIN.
// A keystore miss self-heals: the key is unwrapped from the persisted blob
// using the PIN-derived KEK and written back to the store.
func (s *TagService) GetEncryptionKey(tag *models.Tag, pin string) ([]byte, error) {
	ok, err := s.VerifyPin(tag, pin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrInvalidPin
	}

	if tag.KeyIdentifier == nil || tag.WrappedKey == nil {
		return nil, errors.ErrKeyNotFound
	}

	key, err := s.keystore.Get(*tag.KeyIdentifier)
	if err == nil {
		return key, nil
	}
	if err != errors.ErrKeyNotFound {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(*tag.PinSalt)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt salt", errors.ErrKeystoreFailure)
	}

	kek := security.DeriveKey(pin, salt)
	key, err = security.UnwrapKey(*tag.WrappedKey, kek)
	if err != nil {
		return nil, errors.ErrKeyNotFound
	}

	if err := s.keystore.Save(*tag.KeyIdentifier, key); err != nil {
		return nil, err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelWarning,
		TagID:    tag.ID,
		Action:   "TAG_KEY_RESTORED",
		Resource: "tag_gate",
		Success:  true,
		Metadata: "keystore miss, key regenerated from PIN",
	})

	return key, nil
}

// ChangePin rotates the gate credentials. The content key never changes:
// it is unwrapped with the old PIN's KEK and rewrapped under the new one,
// so existing ciphertext stays decryptable and nothing is re-encrypted.
// The key identifier is stable across PIN changes.
func (s *TagService) ChangePin(tag *models.Tag, currentPin, newPin string) error {
	if err := s.validator.ValidatePin(newPin); err != nil {
		return err
	}

	contentKey, err := s.GetEncryptionKey(tag, currentPin)
	if err != nil {
		return err
	}

	newSalt, err := security.GenerateSalt()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	newHash, err := security.HashPin(newPin, newSalt)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	newKek := security.DeriveKey(newPin, newSalt)
	wrapped, err := security.WrapKey(contentKey, newKek)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}

	saltB64 := base64.StdEncoding.EncodeToString(newSalt)
	tag.PinHash = &newHash
	tag.PinSalt = &saltB64
	tag.WrappedKey = &wrapped

	if err := s.tagRepo.Update(tag); err != nil {
		return err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		TagID:    tag.ID,
		Action:   "TAG_PIN_CHANGED",
		Resource: "tag_gate",
		Success:  true,
	})

	return nil
}

// RemoveEncryption tears down the gate: deletes the stored key and clears
// all credential fields. Refused while entries still use the tag as their
// encryption gate, since losing the key-resolution path would make their
// ciphertext permanently inaccessible.
func (s *TagService) RemoveEncryption(tag *models.Tag, pin string) error {
	ok, err := s.VerifyPin(tag, pin)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrInvalidPin
	}

	gated, err := s.tagRepo.EncryptedEntryIDs(tag.ID)
	if err != nil {
		return err
	}
	if len(gated) > 0 {
		return fmt.Errorf("%w: %d entries still gated by this tag", errors.ErrContentLocked, len(gated))
	}

	if tag.KeyIdentifier != nil {
		if err := s.keystore.Delete(*tag.KeyIdentifier); err != nil {
			return err
		}
	}

	tag.IsEncrypted = false
	tag.PinHash = nil
	tag.PinSalt = nil
	tag.KeyIdentifier = nil
	tag.WrappedKey = nil
	tag.FailedAttempts = 0
	tag.LockedUntil = nil

	if err := s.tagRepo.Update(tag); err != nil {
		return err
	}

	s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		TagID:    tag.ID,
		Action:   "TAG_ENCRYPTION_REMOVED",
		Resource: "tag_gate",
		Success:  true,
	})

	return nil
}

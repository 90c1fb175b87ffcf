package service

import (
	"fmt"

	"github.com/amirk1998/voice-journal/internal/audit"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/internal/repository"
	"github.com/amirk1998/voice-journal/internal/security"
)

// asyncFieldThreshold is the payload size above which a field is encrypted
// off the save goroutine. AI analysis results routinely cross it.
const asyncFieldThreshold = 16 * 1024

// TranscriptionHook is the pre-commit normalizer on transcriptions: the
// last line of defense ensuring text entered while unlocked does not
// persist as plaintext once the save commits. It runs synchronously with
// respect to the save; large fields use the async engine but are awaited
// with a bounded timeout so the invariant holds before the commit.
//
// When the gate key is unavailable (locked session, key deleted) the hook
// does nothing and the save proceeds with plaintext. Blocking every save on
// key availability would break normal app usage; the gap is accepted and
// surfaced as an audit warning instead.
type TranscriptionHook struct {
	tagRepo     *repository.TagRepository
	keystore    security.Keystore
	auditLogger *audit.Logger
}

// NewTranscriptionHook creates the pre-commit transcription normalizer
func NewTranscriptionHook(tagRepo *repository.TagRepository, keystore security.Keystore, auditLogger *audit.Logger) *TranscriptionHook {
	return &TranscriptionHook{
		tagRepo:     tagRepo,
		keystore:    keystore,
		auditLogger: auditLogger,
	}
}

// Normalize migrates residual plaintext into ciphertext for every field
// pair whose ciphertext slot is empty, provided the entry has an active
// encrypted tag and its key is resolvable without a PIN.
func (h *TranscriptionHook) Normalize(entry *models.JournalEntry, t *models.Transcription) {
	if entry == nil || t == nil || entry.EncryptedTagID == nil {
		return
	}

	tag, err := h.tagRepo.GetByID(*entry.EncryptedTagID)
	if err != nil || !tag.IsEncrypted || tag.KeyIdentifier == nil {
		return
	}

	key, err := h.keystore.Get(*tag.KeyIdentifier)
	if err != nil {
		// Accepted gap: no key in a locked session, plaintext persists
		h.auditLogger.Log(&audit.Event{
			Level:    audit.LevelWarning,
			EntryID:  entry.ID,
			TagID:    tag.ID,
			Action:   "TRANSCRIPTION_PLAINTEXT_RETAINED",
			Resource: "transcriptions",
			Success:  false,
			ErrorMsg: "gate key unavailable at save time",
		})
		return
	}

	cipher, err := security.NewCipher(key)
	if err != nil {
		return
	}

	for _, p := range t.FieldPairs() {
		if *p.Plaintext == nil || *p.Ciphertext != nil {
			continue
		}

		plaintext := **p.Plaintext

		var ct string
		var encErr error
		if len(plaintext) > asyncFieldThreshold {
			done := cipher.EncryptStringAsync(plaintext)
			var completed bool
			ct, completed, encErr = security.AwaitEncrypt(done, security.AsyncWaitTimeout)
			if !completed {
				// Timed out: keep plaintext and proceed with the save.
				// Availability wins over strict confidentiality here.
				h.auditLogger.Log(&audit.Event{
					Level:    audit.LevelWarning,
					EntryID:  entry.ID,
					TagID:    tag.ID,
					Action:   "TRANSCRIPTION_PLAINTEXT_RETAINED",
					Resource: "transcriptions",
					Success:  false,
					ErrorMsg: fmt.Sprintf("%s: encryption timed out", p.Name),
				})
				continue
			}
		} else {
			ct, encErr = cipher.EncryptString(plaintext)
		}

		if encErr != nil {
			h.auditLogger.Log(&audit.Event{
				Level:    audit.LevelError,
				EntryID:  entry.ID,
				TagID:    tag.ID,
				Action:   "TRANSCRIPTION_PLAINTEXT_RETAINED",
				Resource: "transcriptions",
				Success:  false,
				ErrorMsg: fmt.Sprintf("%s: %v", p.Name, encErr),
			})
			continue
		}

		*p.Ciphertext = &ct
		*p.Plaintext = nil
	}
}

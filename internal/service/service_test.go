package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amirk1998/voice-journal/internal/audit"
	"github.com/amirk1998/voice-journal/internal/database"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/internal/ratelimit"
	"github.com/amirk1998/voice-journal/internal/repository"
	"github.com/amirk1998/voice-journal/internal/security"
	"github.com/amirk1998/voice-journal/internal/session"
	"github.com/amirk1998/voice-journal/internal/vault"
)

type testEnv struct {
	db          *sql.DB
	keystore    *security.FileKeystore
	vault       *vault.Vault
	session     *session.Session
	rootKey     []byte
	entryRepo   *repository.EntryRepository
	tagRepo     *repository.TagRepository
	auditLogger *audit.Logger
	tags        *TagService
	entries     *EntryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Connect(database.Config{
		Path:          filepath.Join(dir, "journal.db"),
		EncryptionKey: strings.Repeat("k", 32),
		MaxOpenConns:  5,
		MaxIdleConns:  2,
		MaxLifetime:   time.Hour,
		MaxIdleTime:   10 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))

	// Synchronous audit mode keeps events queryable right after the call
	auditLogger, err := audit.NewLogger(db, filepath.Join(dir, "audit.log"), false)
	require.NoError(t, err)
	t.Cleanup(func() { auditLogger.Close() })

	keystore, err := security.NewFileKeystore(filepath.Join(dir, "keystore"))
	require.NoError(t, err)

	rootKey, err := security.GenerateRootKey(keystore)
	require.NoError(t, err)

	mediaVault, err := vault.New(filepath.Join(dir, "media"))
	require.NoError(t, err)

	sess := session.New(mediaVault.Remove)
	limiter := ratelimit.NewRateLimiter(100, 200)

	entryRepo := repository.NewEntryRepository(db)
	tagRepo := repository.NewTagRepository(db)
	entryRepo.SetNormalizer(NewTranscriptionHook(tagRepo, keystore, auditLogger))

	tags := NewTagService(tagRepo, keystore, limiter, auditLogger)
	entries := NewEntryService(entryRepo, tagRepo, tags, mediaVault, sess, rootKey, limiter, auditLogger)

	return &testEnv{
		db:          db,
		keystore:    keystore,
		vault:       mediaVault,
		session:     sess,
		rootKey:     rootKey,
		entryRepo:   entryRepo,
		tagRepo:     tagRepo,
		auditLogger: auditLogger,
		tags:        tags,
		entries:     entries,
	}
}

// newEntryWithContent creates an entry carrying an audio recording and a
// "text" transcription field, still fully plaintext.
func (env *testEnv) newEntryWithContent(t *testing.T, text string) *models.JournalEntry {
	t.Helper()
	ctx := context.Background()

	entry, err := env.entries.CreateEntry(ctx)
	require.NoError(t, err)

	err = env.entries.AttachAudio(ctx, entry, entry.ID+".m4a", []byte("fake audio frames for "+entry.ID), 12.5)
	require.NoError(t, err)

	require.NoError(t, env.entries.SetTranscriptionField(ctx, entry, "text", text))
	return entry
}

// newLockedTag creates a tag and turns it into an encryption gate.
func (env *testEnv) newLockedTag(t *testing.T, name, pin string) *models.Tag {
	t.Helper()

	tag, err := env.tags.CreateTag(name)
	require.NoError(t, err)
	require.NoError(t, env.tags.SetEncryptionPin(tag, pin))
	return tag
}

func (env *testEnv) reload(t *testing.T, id string) *models.JournalEntry {
	t.Helper()
	entry, err := env.entries.GetEntry(id)
	require.NoError(t, err)
	return entry
}

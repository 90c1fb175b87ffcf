package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/voice-journal/internal/database"
	"github.com/amirk1998/voice-journal/internal/vault"
)

func newTestManager(t *testing.T) (*Manager, string) {
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

	mediaVault, err := vault.New(filepath.Join(dir, "media"))
	require.NoError(t, err)

	// Some ciphertext the backup set should carry
	for _, sub := range []string{vault.BaseEncryptedDir, vault.EncryptedFilesDir} {
		p := filepath.Join(mediaVault.Root(), sub, "rec1.m4a"+vault.BaseSuffix)
		require.NoError(t, os.WriteFile(p, []byte("ciphertext bytes"), 0600))
	}
	// Temp plaintext that must never be backed up
	tempPlain := filepath.Join(mediaVault.Root(), vault.TempDecryptedDir, "leak.m4a")
	require.NoError(t, os.WriteFile(tempPlain, []byte("plaintext"), 0600))

	backupDir := filepath.Join(dir, "backups")
	mgr, err := NewManager(db, mediaVault, backupDir, "backup-passphrase", 7)
	require.NoError(t, err)
	return mgr, backupDir
}

func TestCreateAndVerifyBackup(t *testing.T) {
	mgr, backupDir := newTestManager(t)

	path, err := mgr.CreateBackup()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".enc.gz"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Checksum sidecar exists and verifies
	_, err = os.Stat(path + ".sha256")
	require.NoError(t, err)
	assert.NoError(t, mgr.VerifyBackup(path))

	// No unencrypted database snapshot is left behind
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".db"), "plaintext snapshot %s left in backup dir", e.Name())
	}
}

func TestBackupCarriesCiphertextTreeOnly(t *testing.T) {
	mgr, backupDir := newTestManager(t)

	_, err := mgr.CreateBackup()
	require.NoError(t, err)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)

	var mediaSet string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "media_") {
			mediaSet = filepath.Join(backupDir, e.Name())
		}
	}
	require.NotEmpty(t, mediaSet, "backup must include a media ciphertext set")

	for _, sub := range []string{vault.BaseEncryptedDir, vault.EncryptedFilesDir} {
		data, err := os.ReadFile(filepath.Join(mediaSet, sub, "rec1.m4a"+vault.BaseSuffix))
		require.NoError(t, err)
		assert.Equal(t, []byte("ciphertext bytes"), data)
	}

	// Temp decrypted plaintext is excluded from the set
	_, err = os.Stat(filepath.Join(mediaSet, vault.TempDecryptedDir))
	assert.True(t, os.IsNotExist(err))
}

func TestVerifyBackupDetectsTampering(t *testing.T) {
	mgr, _ := newTestManager(t)

	path, err := mgr.CreateBackup()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0600))

	assert.Error(t, mgr.VerifyBackup(path))
}

func TestCleanOldBackups(t *testing.T) {
	mgr, backupDir := newTestManager(t)

	path, err := mgr.CreateBackup()
	require.NoError(t, err)

	// A fresh backup survives the retention sweep
	require.NoError(t, mgr.CleanOldBackups())
	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Age the files past the retention window
	oldTime := time.Now().AddDate(0, 0, -30)
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Chtimes(filepath.Join(backupDir, e.Name()), oldTime, oldTime))
	}

	require.NoError(t, mgr.CleanOldBackups())
	remaining, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

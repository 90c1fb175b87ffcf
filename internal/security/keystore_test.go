package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/voice-journal/pkg/errors"
)

func newTestKeystore(t *testing.T) *FileKeystore {
	t.Helper()
	ks, err := NewFileKeystore(filepath.Join(t.TempDir(), "keystore"))
	require.NoError(t, err)
	return ks
}

func TestFileKeystoreSaveGetDelete(t *testing.T) {
	ks := newTestKeystore(t)
	key := testKey(t)

	require.NoError(t, ks.Save("tag-key-abc", key))

	got, err := ks.Get("tag-key-abc")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	require.NoError(t, ks.Delete("tag-key-abc"))

	_, err = ks.Get("tag-key-abc")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestFileKeystoreGetMissing(t *testing.T) {
	ks := newTestKeystore(t)

	_, err := ks.Get("never-saved")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestFileKeystoreOverwrite(t *testing.T) {
	ks := newTestKeystore(t)

	require.NoError(t, ks.Save("k", []byte("first")))
	require.NoError(t, ks.Save("k", []byte("second")))

	got, err := ks.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFileKeystoreRejectsBadIdentifiers(t *testing.T) {
	ks := newTestKeystore(t)

	for _, id := range []string{"", "../escape", "a/b", "has space"} {
		err := ks.Save(id, []byte("x"))
		assert.ErrorIs(t, err, errors.ErrInvalidInput, "identifier %q", id)
	}
}

func TestFileKeystoreFilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keystore")
	ks, err := NewFileKeystore(dir)
	require.NoError(t, err)

	require.NoError(t, ks.Save("perm-check", []byte("key")))

	info, err := os.Stat(filepath.Join(dir, "perm-check.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestGenerateRootKeyStable(t *testing.T) {
	ks := newTestKeystore(t)

	first, err := GenerateRootKey(ks)
	require.NoError(t, err)
	assert.Len(t, first, KeyLength)

	// Regenerating would orphan all base ciphertext; the stored key wins
	second, err := GenerateRootKey(ks)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

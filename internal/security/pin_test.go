package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, a, SaltLength)

	b, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPinAndVerify(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	encoded, err := HashPin("4242", salt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))
	assert.NotContains(t, encoded, "4242")

	ok, err := VerifyPin("4242", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPin("0000", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPinMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plainhash",
		"$argon2id$v=19$m=65536",
	} {
		_, err := VerifyPin("4242", encoded)
		assert.Error(t, err, "encoded=%q", encoded)
	}
}

func TestHashPinSaltSensitivity(t *testing.T) {
	s1, err := GenerateSalt()
	require.NoError(t, err)
	s2, err := GenerateSalt()
	require.NoError(t, err)

	h1, err := HashPin("4242", s1)
	require.NoError(t, err)
	h2, err := HashPin("4242", s2)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1 := DeriveKey("4242", salt)
	k2 := DeriveKey("4242", salt)
	assert.Equal(t, k1, k2, "same pin and salt must derive the same key")
	assert.Len(t, k1, KeyLength)

	k3 := DeriveKey("0000", salt)
	assert.NotEqual(t, k1, k3)

	otherSalt, err := GenerateSalt()
	require.NoError(t, err)
	k4 := DeriveKey("4242", otherSalt)
	assert.NotEqual(t, k1, k4)
}

func TestGenerateContentKey(t *testing.T) {
	a, err := GenerateContentKey()
	require.NoError(t, err)
	assert.Len(t, a, KeyLength)

	b, err := GenerateContentKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyIdentifier(t *testing.T) {
	id := KeyIdentifier("tag-123")
	assert.Equal(t, id, KeyIdentifier("tag-123"), "identifier must be stable")
	assert.NotEqual(t, id, KeyIdentifier("tag-456"))
	assert.True(t, strings.HasPrefix(id, "tag-key-"))
	assert.NotContains(t, id, "tag-123")
}

func TestWrapUnwrapKey(t *testing.T) {
	contentKey, err := GenerateContentKey()
	require.NoError(t, err)
	kek, err := GenerateContentKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(contentKey, kek)
	require.NoError(t, err)

	unwrapped, err := UnwrapKey(wrapped, kek)
	require.NoError(t, err)
	assert.Equal(t, contentKey, unwrapped)
}

func TestUnwrapKeyWrongKek(t *testing.T) {
	contentKey, err := GenerateContentKey()
	require.NoError(t, err)
	kek, err := GenerateContentKey()
	require.NoError(t, err)
	wrongKek, err := GenerateContentKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(contentKey, kek)
	require.NoError(t, err)

	_, err = UnwrapKey(wrapped, wrongKek)
	assert.Error(t, err)
}

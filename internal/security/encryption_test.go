package security

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := NewCipher(make([]byte, n))
		assert.Error(t, err, "key length %d", n)
	}

	_, err := NewCipher(testKey(t))
	assert.NoError(t, err)
}

func TestEncryptDecryptBytes(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short", []byte("hello")},
		{"empty", []byte{}},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
		{"large", bytes.Repeat([]byte("voice journal audio frame "), 5000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := c.EncryptBytes(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ct)

			pt, err := c.DecryptBytes(ct)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestEncryptBytesNonceUniqueness(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	a, err := c.EncryptBytes([]byte("same input"))
	require.NoError(t, err)
	b, err := c.EncryptBytes([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same plaintext must differ")
}

func TestDecryptBytesWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(t))
	require.NoError(t, err)
	c2, err := NewCipher(testKey(t))
	require.NoError(t, err)

	ct, err := c1.EncryptBytes([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.DecryptBytes(ct)
	assert.Error(t, err)
}

func TestDecryptBytesTamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	ct, err := c.EncryptBytes([]byte("secret"))
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0x01
	_, err = c.DecryptBytes(ct)
	assert.Error(t, err)
}

func TestDecryptBytesTruncated(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	_, err = c.DecryptBytes([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestEncryptDecryptString(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	tests := []string{
		"Hello",
		"",
		"unicode: přepis nahrávky 日記",
		strings.Repeat("transcribed text ", 8000),
	}

	for _, plaintext := range tests {
		ct, err := c.EncryptString(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ct)

		pt, err := c.DecryptString(ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, pt)
	}
}

func TestDecryptStringInvalidBase64(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	_, err = c.DecryptString("not base64 at all!!!")
	assert.Error(t, err)
}

func TestEncryptStringAsync(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	ch := c.EncryptStringAsync("async payload")
	ct, done, err := AwaitEncrypt(ch, AsyncWaitTimeout)
	require.NoError(t, err)
	require.True(t, done)

	pt, err := c.DecryptString(ct)
	require.NoError(t, err)
	assert.Equal(t, "async payload", pt)
}

func TestAwaitEncryptTimeout(t *testing.T) {
	// A channel nobody ever writes to models encryption still in flight
	ch := make(chan AsyncResult)

	start := time.Now()
	_, done, err := AwaitEncrypt(ch, 20*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, done, "timeout must report incomplete, not an error")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

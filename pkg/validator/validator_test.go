package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amirk1998/voice-journal/pkg/errors"
)

func TestValidatePin(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		pin     string
		wantErr error
	}{
		{"four digits", "4242", nil},
		{"longer pin", "correct horse", nil},
		{"three chars", "123", errors.ErrPinTooShort},
		{"empty", "", errors.ErrPinTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePin(tt.pin)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTagName(t *testing.T) {
	v := New()

	valid := []string{"Secret", "work notes", "día-3", "tag_2024"}
	for _, name := range valid {
		assert.NoError(t, v.ValidateTagName(name), "name %q", name)
	}

	invalid := []string{"", "   ", "semi;colon", "quote'", strings.Repeat("a", 41)}
	for _, name := range invalid {
		assert.ErrorIs(t, v.ValidateTagName(name), errors.ErrInvalidTagName, "name %q", name)
	}
}

func TestValidateTranscript(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateTranscript(""))
	assert.NoError(t, v.ValidateTranscript(strings.Repeat("a", MaxTranscriptLength)))
	assert.ErrorIs(t, v.ValidateTranscript(strings.Repeat("a", MaxTranscriptLength+1)), errors.ErrInvalidInput)
}

func TestSanitizeString(t *testing.T) {
	v := New()

	assert.Equal(t, "hello", v.SanitizeString("  hello  "))
	assert.Equal(t, "ab", v.SanitizeString("a\x00b"))
	assert.Equal(t, "line1\nline2", v.SanitizeString("line1\nline2"))
	assert.Equal(t, "tab\there", v.SanitizeString("tab\there"))
}

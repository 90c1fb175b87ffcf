package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/amirk1998/voice-journal/pkg/errors"
)

const (
	// MinPinLength is the minimum accepted PIN length for tag encryption
	MinPinLength = 4

	// MaxTranscriptLength bounds a single transcription field
	MaxTranscriptLength = 500000
)

var (
	// Tag name: 1-40 characters, letters, digits, spaces, dash, underscore
	tagNameRegex = regexp.MustCompile(`^[\p{L}\p{N} _-]{1,40}$`)
)

type Validator struct{}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// ValidatePin checks PIN requirements for tag encryption
func (v *Validator) ValidatePin(pin string) error {
	if len(pin) < MinPinLength {
		return errors.ErrPinTooShort
	}
	return nil
}

// ValidateTagName checks tag name format
func (v *Validator) ValidateTagName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || !tagNameRegex.MatchString(name) {
		return errors.ErrInvalidTagName
	}
	return nil
}

// ValidateTranscript checks a transcription field before storage
func (v *Validator) ValidateTranscript(text string) error {
	if len(text) > MaxTranscriptLength {
		return errors.ErrInvalidInput
	}
	return nil
}

// SanitizeString removes control characters and trims whitespace
func (v *Validator) SanitizeString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

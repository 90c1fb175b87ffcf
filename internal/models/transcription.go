package models

type Transcription struct {
	ID      string `json:"id"`
	EntryID string `json:"entry_id"`

	// Each field has a plaintext slot and a ciphertext slot. At rest at most
	// one of the pair is non-nil.
	Text          *string `json:"text,omitempty"`
	EncryptedText *string `json:"-"`

	RawText          *string `json:"raw_text,omitempty"`
	EncryptedRawText *string `json:"-"`

	EnhancedText          *string `json:"enhanced_text,omitempty"`
	EncryptedEnhancedText *string `json:"-"`

	AIAnalysis          *string `json:"ai_analysis,omitempty"`
	EncryptedAIAnalysis *string `json:"-"`
}

// FieldPair exposes one plaintext/ciphertext slot pair for iteration.
type FieldPair struct {
	Name       string
	Plaintext  **string
	Ciphertext **string
}

// FieldPairs returns the four encryptable field pairs
func (t *Transcription) FieldPairs() []FieldPair {
	return []FieldPair{
		{"text", &t.Text, &t.EncryptedText},
		{"raw_text", &t.RawText, &t.EncryptedRawText},
		{"enhanced_text", &t.EnhancedText, &t.EncryptedEnhancedText},
		{"ai_analysis", &t.AIAnalysis, &t.EncryptedAIAnalysis},
	}
}

// HasPlaintext reports whether any plaintext slot is populated
func (t *Transcription) HasPlaintext() bool {
	for _, p := range t.FieldPairs() {
		if *p.Plaintext != nil {
			return true
		}
	}
	return false
}

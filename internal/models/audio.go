package models

type AudioRecording struct {
	ID       string `json:"id"`
	EntryID  string `json:"entry_id"`
	FilePath string `json:"file_path"` // current on-disk location, possibly ciphertext
	// OriginalFilePath preserves the very first plaintext location across
	// encryption layers; set once, never updated by later layers.
	OriginalFilePath *string `json:"original_file_path,omitempty"`
	IsEncrypted      bool    `json:"is_encrypted"` // tag-layer flag
	Duration         float64 `json:"duration_seconds"`
	FileSize         int64   `json:"file_size"`
}

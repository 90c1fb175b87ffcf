package database

import (
	"database/sql"
	"fmt"
)

// Migrate runs database migrations
func Migrate(db *sql.DB) error {
	// Tags carry the optional encryption gate: PIN hash, salt, the opaque
	// keystore identifier and the PIN-wrapped content key.
	tagsSchema := `
    CREATE TABLE IF NOT EXISTS tags (
        id TEXT PRIMARY KEY,
        name TEXT UNIQUE NOT NULL,
        is_encrypted BOOLEAN DEFAULT 0,
        pin_hash TEXT,
        pin_salt TEXT,
        key_identifier TEXT,
        wrapped_key TEXT,
        failed_attempts INTEGER DEFAULT 0,
        locked_until DATETIME,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);
    CREATE INDEX IF NOT EXISTS idx_tags_encrypted ON tags(is_encrypted);
    `

	if _, err := db.Exec(tagsSchema); err != nil {
		return fmt.Errorf("failed to create tags table: %w", err)
	}

	entriesSchema := `
    CREATE TABLE IF NOT EXISTS journal_entries (
        id TEXT PRIMARY KEY,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        is_locked BOOLEAN DEFAULT 0,
        is_base_encrypted BOOLEAN DEFAULT 0,
        encrypted_tag_id TEXT,
        base_encrypted_audio_path TEXT,
        FOREIGN KEY (encrypted_tag_id) REFERENCES tags(id) ON DELETE SET NULL
    );

    CREATE INDEX IF NOT EXISTS idx_entries_created ON journal_entries(created_at);
    CREATE INDEX IF NOT EXISTS idx_entries_encrypted_tag ON journal_entries(encrypted_tag_id);
    `

	if _, err := db.Exec(entriesSchema); err != nil {
		return fmt.Errorf("failed to create journal_entries table: %w", err)
	}

	audioSchema := `
    CREATE TABLE IF NOT EXISTS audio_recordings (
        id TEXT PRIMARY KEY,
        entry_id TEXT UNIQUE NOT NULL,
        file_path TEXT NOT NULL,
        original_file_path TEXT,
        is_encrypted BOOLEAN DEFAULT 0,
        duration_seconds REAL DEFAULT 0,
        file_size INTEGER DEFAULT 0,
        FOREIGN KEY (entry_id) REFERENCES journal_entries(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_audio_entry ON audio_recordings(entry_id);
    `

	if _, err := db.Exec(audioSchema); err != nil {
		return fmt.Errorf("failed to create audio_recordings table: %w", err)
	}

	// Each text field has a plaintext slot and a ciphertext slot. At rest at
	// most one of the pair is non-NULL; the pre-commit normalizer enforces it.
	transcriptionsSchema := `
    CREATE TABLE IF NOT EXISTS transcriptions (
        id TEXT PRIMARY KEY,
        entry_id TEXT UNIQUE NOT NULL,
        text TEXT,
        encrypted_text TEXT,
        raw_text TEXT,
        encrypted_raw_text TEXT,
        enhanced_text TEXT,
        encrypted_enhanced_text TEXT,
        ai_analysis TEXT,
        encrypted_ai_analysis TEXT,
        FOREIGN KEY (entry_id) REFERENCES journal_entries(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_transcriptions_entry ON transcriptions(entry_id);
    `

	if _, err := db.Exec(transcriptionsSchema); err != nil {
		return fmt.Errorf("failed to create transcriptions table: %w", err)
	}

	entryTagsSchema := `
    CREATE TABLE IF NOT EXISTS entry_tags (
        entry_id TEXT NOT NULL,
        tag_id TEXT NOT NULL,
        PRIMARY KEY (entry_id, tag_id),
        FOREIGN KEY (entry_id) REFERENCES journal_entries(id) ON DELETE CASCADE,
        FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_entry_tags_tag ON entry_tags(tag_id);
    `

	if _, err := db.Exec(entryTagsSchema); err != nil {
		return fmt.Errorf("failed to create entry_tags table: %w", err)
	}

	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amirk1998/voice-journal/internal/database"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/pkg/errors"
)

// TranscriptionNormalizer runs immediately before a transcription save
// commits. It is the last line of defense against plaintext escaping to
// storage while a governing encrypted tag is active.
type TranscriptionNormalizer interface {
	Normalize(entry *models.JournalEntry, t *models.Transcription)
}

type EntryRepository struct {
	db         *sql.DB
	txManager  *database.TransactionManager
	normalizer TranscriptionNormalizer
}

// NewEntryRepository creates a new journal entry repository
func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{
		db:        db,
		txManager: database.NewTransactionManager(db),
	}
}

// SetNormalizer installs the pre-commit transcription hook
func (r *EntryRepository) SetNormalizer(n TranscriptionNormalizer) {
	r.normalizer = n
}

// Create creates a new journal entry
func (r *EntryRepository) Create(entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
        INSERT INTO journal_entries (id, created_at, updated_at, is_locked, is_base_encrypted, encrypted_tag_id, base_encrypted_audio_path)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `

	now := time.Now()
	_, err := r.db.Exec(query,
		entry.ID,
		now,
		now,
		entry.IsLocked,
		entry.IsBaseEncrypted,
		entry.EncryptedTagID,
		entry.BaseEncryptedAudioPath,
	)

	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

// GetByID retrieves an entry with its audio, transcription and tags
func (r *EntryRepository) GetByID(id string) (*models.JournalEntry, error) {
	query := `
        SELECT id, created_at, updated_at, is_locked, is_base_encrypted, encrypted_tag_id, base_encrypted_audio_path
        FROM journal_entries
        WHERE id = ?
    `

	entry := &models.JournalEntry{}
	err := r.db.QueryRow(query, id).Scan(
		&entry.ID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.IsLocked,
		&entry.IsBaseEncrypted,
		&entry.EncryptedTagID,
		&entry.BaseEncryptedAudioPath,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	if entry.Audio, err = r.getAudio(id); err != nil {
		return nil, err
	}
	if entry.Transcription, err = r.getTranscription(id); err != nil {
		return nil, err
	}
	if entry.Tags, err = r.getTags(id); err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *EntryRepository) getAudio(entryID string) (*models.AudioRecording, error) {
	query := `
        SELECT id, entry_id, file_path, original_file_path, is_encrypted, duration_seconds, file_size
        FROM audio_recordings
        WHERE entry_id = ?
    `

	audio := &models.AudioRecording{}
	err := r.db.QueryRow(query, entryID).Scan(
		&audio.ID,
		&audio.EntryID,
		&audio.FilePath,
		&audio.OriginalFilePath,
		&audio.IsEncrypted,
		&audio.Duration,
		&audio.FileSize,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audio recording: %w", err)
	}

	return audio, nil
}

func (r *EntryRepository) getTranscription(entryID string) (*models.Transcription, error) {
	query := `
        SELECT id, entry_id, text, encrypted_text, raw_text, encrypted_raw_text,
               enhanced_text, encrypted_enhanced_text, ai_analysis, encrypted_ai_analysis
        FROM transcriptions
        WHERE entry_id = ?
    `

	t := &models.Transcription{}
	err := r.db.QueryRow(query, entryID).Scan(
		&t.ID,
		&t.EntryID,
		&t.Text,
		&t.EncryptedText,
		&t.RawText,
		&t.EncryptedRawText,
		&t.EnhancedText,
		&t.EncryptedEnhancedText,
		&t.AIAnalysis,
		&t.EncryptedAIAnalysis,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcription: %w", err)
	}

	return t, nil
}

func (r *EntryRepository) getTags(entryID string) ([]*models.Tag, error) {
	query := `
        SELECT t.id, t.name, t.is_encrypted, t.pin_hash, t.pin_salt, t.key_identifier, t.wrapped_key, t.failed_attempts, t.locked_until, t.created_at
        FROM tags t
        JOIN entry_tags et ON et.tag_id = t.id
        WHERE et.entry_id = ?
        ORDER BY t.name
    `

	rows, err := r.db.Query(query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		err := rows.Scan(
			&tag.ID,
			&tag.Name,
			&tag.IsEncrypted,
			&tag.PinHash,
			&tag.PinSalt,
			&tag.KeyIdentifier,
			&tag.WrappedKey,
			&tag.FailedAttempts,
			&tag.LockedUntil,
			&tag.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tags, nil
}

// List retrieves entries with filters, newest first
func (r *EntryRepository) List(filters models.ListEntriesFilters) ([]*models.JournalEntry, error) {
	query := `
        SELECT DISTINCT e.id, e.created_at, e.updated_at, e.is_locked, e.is_base_encrypted, e.encrypted_tag_id, e.base_encrypted_audio_path
        FROM journal_entries e
    `

	args := []interface{}{}

	if filters.TagID != "" {
		query += " JOIN entry_tags et ON et.entry_id = e.id AND et.tag_id = ?"
		args = append(args, filters.TagID)
	}

	query += " WHERE 1=1"

	if filters.StartTime != nil {
		query += " AND e.created_at >= ?"
		args = append(args, filters.StartTime)
	}

	if filters.EndTime != nil {
		query += " AND e.created_at <= ?"
		args = append(args, filters.EndTime)
	}

	query += " ORDER BY e.created_at DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)

		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.JournalEntry
	for rows.Next() {
		entry := &models.JournalEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.CreatedAt,
			&entry.UpdatedAt,
			&entry.IsLocked,
			&entry.IsBaseEncrypted,
			&entry.EncryptedTagID,
			&entry.BaseEncryptedAudioPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// Update updates an entry's flags and paths
func (r *EntryRepository) Update(entry *models.JournalEntry) error {
	query := `
        UPDATE journal_entries
        SET updated_at = ?, is_locked = ?, is_base_encrypted = ?, encrypted_tag_id = ?, base_encrypted_audio_path = ?
        WHERE id = ?
    `

	now := time.Now()
	result, err := r.db.Exec(query,
		now,
		entry.IsLocked,
		entry.IsBaseEncrypted,
		entry.EncryptedTagID,
		entry.BaseEncryptedAudioPath,
		entry.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return errors.ErrRecordNotFound
	}

	entry.UpdatedAt = now
	return nil
}

// SaveAudio inserts or updates the entry's audio recording
func (r *EntryRepository) SaveAudio(audio *models.AudioRecording) error {
	if audio.ID == "" {
		audio.ID = uuid.NewString()
	}

	query := `
        INSERT INTO audio_recordings (id, entry_id, file_path, original_file_path, is_encrypted, duration_seconds, file_size)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(entry_id) DO UPDATE SET
            file_path = excluded.file_path,
            original_file_path = excluded.original_file_path,
            is_encrypted = excluded.is_encrypted,
            duration_seconds = excluded.duration_seconds,
            file_size = excluded.file_size
    `

	_, err := r.db.Exec(query,
		audio.ID,
		audio.EntryID,
		audio.FilePath,
		audio.OriginalFilePath,
		audio.IsEncrypted,
		audio.Duration,
		audio.FileSize,
	)

	if err != nil {
		return fmt.Errorf("failed to save audio recording: %w", err)
	}

	return nil
}

// SaveTranscription inserts or updates the entry's transcription. The
// normalizer runs synchronously before the write so the commit never
// persists plaintext that should be ciphertext.
func (r *EntryRepository) SaveTranscription(ctx context.Context, entry *models.JournalEntry, t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.EntryID = entry.ID

	if r.normalizer != nil {
		r.normalizer.Normalize(entry, t)
	}

	return r.txManager.Execute(ctx, func(tx *sql.Tx) error {
		query := `
            INSERT INTO transcriptions (id, entry_id, text, encrypted_text, raw_text, encrypted_raw_text,
                                        enhanced_text, encrypted_enhanced_text, ai_analysis, encrypted_ai_analysis)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(entry_id) DO UPDATE SET
                text = excluded.text,
                encrypted_text = excluded.encrypted_text,
                raw_text = excluded.raw_text,
                encrypted_raw_text = excluded.encrypted_raw_text,
                enhanced_text = excluded.enhanced_text,
                encrypted_enhanced_text = excluded.encrypted_enhanced_text,
                ai_analysis = excluded.ai_analysis,
                encrypted_ai_analysis = excluded.encrypted_ai_analysis
        `

		_, err := tx.Exec(query,
			t.ID,
			t.EntryID,
			t.Text,
			t.EncryptedText,
			t.RawText,
			t.EncryptedRawText,
			t.EnhancedText,
			t.EncryptedEnhancedText,
			t.AIAnalysis,
			t.EncryptedAIAnalysis,
		)
		if err != nil {
			return fmt.Errorf("failed to save transcription: %w", err)
		}
		return nil
	})
}

// Delete deletes an entry; audio and transcription rows cascade
func (r *EntryRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM journal_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return errors.ErrRecordNotFound
	}

	return nil
}

// AddTag adds plain tag membership
func (r *EntryRepository) AddTag(entryID, tagID string) error {
	query := `INSERT OR IGNORE INTO entry_tags (entry_id, tag_id) VALUES (?, ?)`
	if _, err := r.db.Exec(query, entryID, tagID); err != nil {
		return fmt.Errorf("failed to add tag membership: %w", err)
	}
	return nil
}

// RemoveTag removes plain tag membership
func (r *EntryRepository) RemoveTag(entryID, tagID string) error {
	if _, err := r.db.Exec(`DELETE FROM entry_tags WHERE entry_id = ? AND tag_id = ?`, entryID, tagID); err != nil {
		return fmt.Errorf("failed to remove tag membership: %w", err)
	}
	return nil
}

// HasTag reports plain tag membership
func (r *EntryRepository) HasTag(entryID, tagID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM entry_tags WHERE entry_id = ? AND tag_id = ?`, entryID, tagID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tag membership: %w", err)
	}
	return count > 0, nil
}

// Count returns the total number of journal entries
func (r *EntryRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

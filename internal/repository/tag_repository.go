package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/pkg/errors"
)

type TagRepository struct {
	db *sql.DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create creates a new tag
func (r *TagRepository) Create(tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}

	query := `
        INSERT INTO tags (id, name, is_encrypted, pin_hash, pin_salt, key_identifier, wrapped_key, failed_attempts, locked_until, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	now := time.Now()
	_, err := r.db.Exec(query,
		tag.ID,
		tag.Name,
		tag.IsEncrypted,
		tag.PinHash,
		tag.PinSalt,
		tag.KeyIdentifier,
		tag.WrappedKey,
		tag.FailedAttempts,
		tag.LockedUntil,
		now,
	)

	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}

	tag.CreatedAt = now
	return nil
}

// GetByID retrieves a tag by ID
func (r *TagRepository) GetByID(id string) (*models.Tag, error) {
	query := `
        SELECT id, name, is_encrypted, pin_hash, pin_salt, key_identifier, wrapped_key, failed_attempts, locked_until, created_at
        FROM tags
        WHERE id = ?
    `
	return r.scanTag(r.db.QueryRow(query, id))
}

// GetByName retrieves a tag by its display name
func (r *TagRepository) GetByName(name string) (*models.Tag, error) {
	query := `
        SELECT id, name, is_encrypted, pin_hash, pin_salt, key_identifier, wrapped_key, failed_attempts, locked_until, created_at
        FROM tags
        WHERE name = ?
    `
	return r.scanTag(r.db.QueryRow(query, name))
}

func (r *TagRepository) scanTag(row *sql.Row) (*models.Tag, error) {
	tag := &models.Tag{}
	err := row.Scan(
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

	if err == sql.ErrNoRows {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// List retrieves all tags ordered by name
func (r *TagRepository) List() ([]*models.Tag, error) {
	query := `
        SELECT id, name, is_encrypted, pin_hash, pin_salt, key_identifier, wrapped_key, failed_attempts, locked_until, created_at
        FROM tags
        ORDER BY name
    `

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
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

// Update updates a tag's gate state. All credential fields are written
// together so a gate is never half-configured in storage.
func (r *TagRepository) Update(tag *models.Tag) error {
	query := `
        UPDATE tags
        SET name = ?, is_encrypted = ?, pin_hash = ?, pin_salt = ?, key_identifier = ?, wrapped_key = ?, failed_attempts = ?, locked_until = ?
        WHERE id = ?
    `

	result, err := r.db.Exec(query,
		tag.Name,
		tag.IsEncrypted,
		tag.PinHash,
		tag.PinSalt,
		tag.KeyIdentifier,
		tag.WrappedKey,
		tag.FailedAttempts,
		tag.LockedUntil,
		tag.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
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

// Delete deletes a tag
func (r *TagRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
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

// EncryptedEntryIDs returns the inverse gate relationship: IDs of entries
// using this tag as their encryption gate
func (r *TagRepository) EncryptedEntryIDs(tagID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM journal_entries WHERE encrypted_tag_id = ?`, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to query encrypted entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ids, nil
}

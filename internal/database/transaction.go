package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// txTimeout bounds a single transaction. Transcription saves run the
// pre-commit encryption hook inside this window, including its bounded
// wait on the async engine, so it must stay comfortably above that wait.
const txTimeout = 30 * time.Second

// TransactionManager wraps multi-statement writes, used by the save paths
// that must commit transcription slot pairs atomically.
type TransactionManager struct {
	db *sql.DB
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Execute runs fn inside a serializable transaction, rolling back on error
// or panic. Serializable is cheap on a single-writer SQLite database and
// keeps the at-rest invariant checks simple.
func (tm *TransactionManager) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := tm.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  false,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

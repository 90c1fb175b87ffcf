package errors

import (
	"errors"
	"fmt"
)

// Custom error types for better error handling
var (
	// PIN and tag-gate errors (expected, user recoverable)
	ErrInvalidPin      = errors.New("incorrect PIN")
	ErrPinTooShort     = errors.New("PIN must be at least 4 characters")
	ErrTagNotEncrypted = errors.New("tag is not encrypted")
	ErrTagGateLocked   = errors.New("too many failed attempts, tag temporarily locked")
	ErrContentLocked   = errors.New("content must be decrypted before this operation")
	ErrNoEncryptedTag  = errors.New("entry has no encrypted tag")

	// Validation errors
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidTagName = errors.New("invalid tag name")

	// Key resolution errors
	ErrKeyNotFound     = errors.New("encryption key not found")
	ErrKeystoreFailure = errors.New("keystore operation failed")
	ErrInvalidKey      = errors.New("invalid encryption key")

	// Encryption errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Database errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrRecordNotFound     = errors.New("record not found")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Backup errors
	ErrBackupFailed  = errors.New("backup operation failed")
	ErrRestoreFailed = errors.New("restore operation failed")
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// IsRecoverable reports whether err is an expected user-level condition
// (wrong PIN, short PIN, locked gate) rather than an internal failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidPin) ||
		errors.Is(err, ErrPinTooShort) ||
		errors.Is(err, ErrTagNotEncrypted) ||
		errors.Is(err, ErrTagGateLocked) ||
		errors.Is(err, ErrContentLocked) ||
		errors.Is(err, ErrRateLimitExceeded)
}

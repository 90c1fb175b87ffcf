package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_ENCRYPTION_KEY", strings.Repeat("k", 32))
	t.Setenv("BACKUP_ENCRYPTION_KEY", "backup-passphrase")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("BACKUP_INTERVAL_HOURS", "6")
	t.Setenv("AUDIT_ASYNC_MODE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 6*time.Hour, cfg.BackupInterval)
	assert.False(t, cfg.AuditAsyncMode)
	assert.Equal(t, 10, cfg.RateLimitRPS, "defaults apply when unset")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing db key",
			mutate:  func(c *Config) { c.DBEncryptionKey = "" },
			wantErr: "DB_ENCRYPTION_KEY is required",
		},
		{
			name:    "short db key",
			mutate:  func(c *Config) { c.DBEncryptionKey = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "missing backup key",
			mutate:  func(c *Config) { c.BackupEncryptionKey = "" },
			wantErr: "BACKUP_ENCRYPTION_KEY is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DBEncryptionKey:     strings.Repeat("k", 32),
				BackupEncryptionKey: "backup-passphrase",
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "not a number")
	assert.Equal(t, 20, getEnvAsInt("RATE_LIMIT_BURST", 20))
}

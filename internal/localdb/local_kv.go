package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

// GetValue returns the value stored under key.
func GetValue(key string) (string, bool, error) {
	db := GetDB()
	if db == nil {
		return "", false, ErrNotInitialized
	}

	var value string
	err := db.QueryRow(`SELECT value FROM local_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		logger.Error("Failed to get local value", zap.Error(err), zap.String("key", key))
		return "", false, fmt.Errorf("failed to get local value: %w", err)
	}
	return value, true, nil
}

// SetValue upserts key.
func SetValue(key, value string) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	_, err := db.Exec(`
		INSERT INTO local_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		logger.Error("Failed to set local value", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to set local value: %w", err)
	}
	return nil
}

// DeleteValue removes key. Missing keys are not an error.
func DeleteValue(key string) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	if _, err := db.Exec(`DELETE FROM local_kv WHERE key = ?`, key); err != nil {
		logger.Error("Failed to delete local value", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to delete local value: %w", err)
	}
	return nil
}

// KV adapts the local_kv table to a Get/Set cache. Read errors are reported as a miss.
type KV struct{}

func (KV) Get(key string) (string, bool) {
	v, ok, err := GetValue(key)
	if err != nil {
		return "", false
	}
	return v, ok
}

func (KV) Set(key, value string) error {
	return SetValue(key, value)
}

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

// sqlite側の現在時刻（unix ms）
const sqliteNowMillis = `CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER)`

// SetupSpinRecordsTable creates the per-user last spin table.
func SetupSpinRecordsTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS spin_records (
			user_id TEXT PRIMARY KEY,
			created_at_ms INTEGER NOT NULL
		)
	`); err != nil {
		logger.Error("Failed to create spin_records table", zap.Error(err))
		return fmt.Errorf("failed to create spin_records table: %w", err)
	}
	return nil
}

// GetLastSpin returns the last spin time of userID. ok is false when there is no record.
func GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error) {
	db := GetDB()
	if db == nil {
		return time.Time{}, false, ErrNotInitialized
	}

	var ms int64
	err := db.QueryRowContext(ctx, `SELECT created_at_ms FROM spin_records WHERE user_id = ?`, userID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		logger.Error("Failed to get spin record", zap.Error(err), zap.String("user_id", userID))
		return time.Time{}, false, fmt.Errorf("failed to get spin record: %w", err)
	}

	return time.UnixMilli(ms), true, nil
}

// TouchLastSpin upserts userID's record with the database clock and returns the stored time.
func TouchLastSpin(ctx context.Context, userID string) (time.Time, error) {
	db := GetDB()
	if db == nil {
		return time.Time{}, ErrNotInitialized
	}

	var ms int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO spin_records (user_id, created_at_ms)
		VALUES (?, `+sqliteNowMillis+`)
		ON CONFLICT(user_id) DO UPDATE SET
			created_at_ms = excluded.created_at_ms
		RETURNING created_at_ms
	`, userID).Scan(&ms)
	if err != nil {
		logger.Error("Failed to upsert spin record", zap.Error(err), zap.String("user_id", userID))
		return time.Time{}, fmt.Errorf("failed to upsert spin record: %w", err)
	}

	return time.UnixMilli(ms), nil
}

// DeleteSpinRecord removes userID's record (admin reset).
func DeleteSpinRecord(ctx context.Context, userID string) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM spin_records WHERE user_id = ?`, userID); err != nil {
		logger.Error("Failed to delete spin record", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("failed to delete spin record: %w", err)
	}
	return nil
}

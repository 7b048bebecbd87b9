package localdb

import (
	"database/sql"
	"fmt"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"go.uber.org/zap"
)

// SetupWheelSegmentsTable creates the wheel_segments table.
func SetupWheelSegmentsTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wheel_segments (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			weight INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		logger.Error("Failed to create wheel_segments table", zap.Error(err))
		return fmt.Errorf("failed to create wheel_segments table: %w", err)
	}
	return nil
}

// GetWheelSegments returns the saved segment list in wheel order.
func GetWheelSegments() ([]types.Segment, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrNotInitialized
	}

	rows, err := db.Query(`SELECT id, name, color, weight FROM wheel_segments ORDER BY position`)
	if err != nil {
		logger.Error("Failed to get wheel segments", zap.Error(err))
		return nil, fmt.Errorf("failed to get wheel segments: %w", err)
	}
	defer rows.Close()

	segments := []types.Segment{}
	for rows.Next() {
		var seg types.Segment
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Color, &seg.Weight); err != nil {
			logger.Error("Failed to scan wheel segment", zap.Error(err))
			return nil, fmt.Errorf("failed to scan wheel segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wheel segments: %w", err)
	}
	return segments, nil
}

// SaveWheelSegments replaces the saved segment list.
func SaveWheelSegments(segments []types.Segment) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM wheel_segments`); err != nil {
		logger.Error("Failed to clear wheel segments", zap.Error(err))
		return fmt.Errorf("failed to clear wheel segments: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO wheel_segments (position, id, name, color, weight) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare wheel segment insert: %w", err)
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.Exec(i, seg.ID, seg.Name, seg.Color, seg.Weight); err != nil {
			logger.Error("Failed to save wheel segment", zap.Error(err), zap.String("id", seg.ID))
			return fmt.Errorf("failed to save wheel segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wheel segments: %w", err)
	}
	return nil
}

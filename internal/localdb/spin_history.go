package localdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

// SpinHistory はスピン結果の履歴1件
type SpinHistory struct {
	ID            int       `json:"id"`
	OutcomeID     string    `json:"outcome_id"`
	UserID        string    `json:"user_id"`
	WinnerID      string    `json:"winner_id"`
	WinnerName    string    `json:"winner_name"`
	WinnerIndex   int       `json:"winner_index"`
	Deterministic bool      `json:"deterministic"`
	FinalAngle    float64   `json:"final_angle"`
	SpinsCount    int       `json:"spins_count"`
	StartedAt     time.Time `json:"started_at"`
	SettledAt     time.Time `json:"settled_at"`
}

// SetupSpinHistoryTable creates the spin_history table.
func SetupSpinHistoryTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS spin_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			outcome_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			winner_id TEXT NOT NULL,
			winner_name TEXT NOT NULL,
			winner_index INTEGER NOT NULL,
			deterministic BOOLEAN NOT NULL DEFAULT false,
			final_angle REAL NOT NULL DEFAULT 0,
			spins_count INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			settled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create spin_history table", zap.Error(err))
		return fmt.Errorf("failed to create spin_history table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_spin_history_settled_at ON spin_history(settled_at DESC)`); err != nil {
		logger.Warn("Failed to create spin_history index", zap.Error(err))
	}

	return nil
}

// SaveSpinHistory saves one spin outcome.
func SaveSpinHistory(history SpinHistory) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	if history.SettledAt.IsZero() {
		history.SettledAt = time.Now()
	}
	if history.StartedAt.IsZero() {
		history.StartedAt = history.SettledAt
	}

	_, err := db.Exec(`
		INSERT INTO spin_history (
			outcome_id, user_id, winner_id, winner_name, winner_index, deterministic, final_angle, spins_count, started_at, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		history.OutcomeID,
		history.UserID,
		history.WinnerID,
		history.WinnerName,
		history.WinnerIndex,
		history.Deterministic,
		history.FinalAngle,
		history.SpinsCount,
		history.StartedAt,
		history.SettledAt,
	)
	if err != nil {
		logger.Error("Failed to save spin history", zap.Error(err), zap.String("outcome_id", history.OutcomeID))
		return fmt.Errorf("failed to save spin history: %w", err)
	}

	return nil
}

const spinHistoryColumns = `id, outcome_id, user_id, winner_id, winner_name, winner_index, deterministic, final_angle, spins_count, started_at, settled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpinHistory(row rowScanner, item *SpinHistory) error {
	return row.Scan(
		&item.ID,
		&item.OutcomeID,
		&item.UserID,
		&item.WinnerID,
		&item.WinnerName,
		&item.WinnerIndex,
		&item.Deterministic,
		&item.FinalAngle,
		&item.SpinsCount,
		&item.StartedAt,
		&item.SettledAt,
	)
}

// GetSpinHistory returns spin history ordered by latest first. limit <= 0 returns all.
func GetSpinHistory(limit int) ([]SpinHistory, error) {
	db := GetDB()
	if db == nil {
		return []SpinHistory{}, ErrNotInitialized
	}

	query := `SELECT ` + spinHistoryColumns + ` FROM spin_history ORDER BY settled_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		logger.Error("Failed to get spin history", zap.Error(err))
		return []SpinHistory{}, fmt.Errorf("failed to get spin history: %w", err)
	}
	defer rows.Close()

	history := []SpinHistory{}
	for rows.Next() {
		var item SpinHistory
		if err := scanSpinHistory(rows, &item); err != nil {
			logger.Error("Failed to scan spin history", zap.Error(err))
			continue
		}
		history = append(history, item)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating spin history", zap.Error(err))
		return []SpinHistory{}, fmt.Errorf("failed to iterate spin history: %w", err)
	}

	return history, nil
}

// GetSpinHistoryByOutcome looks up a single outcome.
func GetSpinHistoryByOutcome(outcomeID string) (*SpinHistory, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrNotInitialized
	}

	var item SpinHistory
	err := scanSpinHistory(db.QueryRow(`SELECT `+spinHistoryColumns+` FROM spin_history WHERE outcome_id = ?`, outcomeID), &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.Error("Failed to get spin history", zap.Error(err), zap.String("outcome_id", outcomeID))
		return nil, fmt.Errorf("failed to get spin history: %w", err)
	}
	return &item, nil
}

// DeleteSpinHistory deletes spin history by id.
func DeleteSpinHistory(id int) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	res, err := db.Exec(`DELETE FROM spin_history WHERE id = ?`, id)
	if err != nil {
		logger.Error("Failed to delete spin history", zap.Error(err), zap.Int("id", id))
		return fmt.Errorf("failed to delete spin history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

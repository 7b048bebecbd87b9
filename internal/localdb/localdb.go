package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrNotFound       = errors.New("record not found")
)

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	DBClient = db

	// settingsテーブル
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, err
	}

	// local_kvテーブル（ブラウザのlocalStorage相当）
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS local_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create local_kv table", zap.Error(err))
		return nil, fmt.Errorf("failed to create local_kv table: %w", err)
	}

	if err := SetupSpinRecordsTable(db); err != nil {
		return nil, err
	}
	if err := SetupSpinHistoryTable(db); err != nil {
		return nil, err
	}
	if err := SetupWheelSegmentsTable(db); err != nil {
		return nil, err
	}

	return db, nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	return DBClient
}

// Close closes the shared connection.
func Close() error {
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	return err
}

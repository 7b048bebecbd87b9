package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
	"xorm.io/xorm"
)

// spinRecord はMySQLのspin_recordsテーブル
type spinRecord struct {
	UserID      string `xorm:"pk varchar(191) 'user_id'"`
	CreatedAtMs int64  `xorm:"bigint notnull 'created_at_ms'"`
}

func (spinRecord) TableName() string {
	return "spin_records"
}

// MySQLStore keeps records in a shared MySQL table, stamped with NOW(3).
type MySQLStore struct {
	engine *xorm.Engine
}

func NewMySQLStore(cfg Config) (*MySQLStore, error) {
	if cfg.MySQLDSN == "" {
		return nil, errors.New("mysql dsn is required")
	}

	engine, err := xorm.NewEngine("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Error("Failed opening mysql", zap.Error(err))
		return nil, fmt.Errorf("failed opening mysql: %w", err)
	}

	engine.SetMaxIdleConns(2)
	engine.SetMaxOpenConns(10)
	if engine.DB() != nil {
		engine.DB().SetConnMaxLifetime(3 * time.Minute)
		engine.DB().SetConnMaxIdleTime(time.Minute)
	}

	if err := engine.Ping(); err != nil {
		logger.Error("Failed pinging mysql", zap.Error(err))
		_ = engine.Close()
		return nil, fmt.Errorf("failed pinging mysql: %w", err)
	}
	if err := engine.Sync(new(spinRecord)); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("failed to sync spin_records table: %w", err)
	}

	logger.Info("MySQL record store connected")
	return &MySQLStore{engine: engine}, nil
}

func (s *MySQLStore) GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error) {
	var rec spinRecord
	has, err := s.engine.Context(ctx).Where("user_id = ?", userID).Get(&rec)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get spin record: %w", err)
	}
	if !has {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(rec.CreatedAtMs), true, nil
}

func (s *MySQLStore) TouchLastSpin(ctx context.Context, userID string) (time.Time, error) {
	if _, err := s.engine.Context(ctx).Exec(`
		INSERT INTO spin_records (user_id, created_at_ms)
		VALUES (?, CAST(UNIX_TIMESTAMP(NOW(3)) * 1000 AS SIGNED))
		ON DUPLICATE KEY UPDATE created_at_ms = VALUES(created_at_ms)
	`, userID); err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert spin record: %w", err)
	}

	t, ok, err := s.GetLastSpin(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, errors.New("spin record missing after upsert")
	}
	return t, nil
}

func (s *MySQLStore) ResetLastSpin(ctx context.Context, userID string) error {
	if _, err := s.engine.Context(ctx).Where("user_id = ?", userID).Delete(&spinRecord{}); err != nil {
		return fmt.Errorf("failed to delete spin record: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	logger.Info("Closing mysql record store")
	return s.engine.Close()
}

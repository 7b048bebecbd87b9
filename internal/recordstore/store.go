package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

var ErrUnknownBackend = errors.New("unknown record store backend")

// Store persists the last spin time per user. Timestamps are assigned by the
// backend's own clock.
type Store interface {
	GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error)
	TouchLastSpin(ctx context.Context, userID string) (time.Time, error)
	// ResetLastSpin removes the record so the user may spin again.
	ResetLastSpin(ctx context.Context, userID string) error
	Close() error
}

type Config struct {
	Backend       string
	RedisAddr     string // カンマ区切りで複数指定可
	RedisPassword string
	RedisDB       int
	MySQLDSN      string
}

// New opens the configured backend. An empty backend selects sqlite.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSQLite:
		return NewSQLiteStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg)
	case BackendMySQL:
		return NewMySQLStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

package recordstore

import (
	"context"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/localdb"
)

// SQLiteStore keeps records in the local database opened by localdb.SetupDB.
type SQLiteStore struct{}

func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

func (s *SQLiteStore) GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error) {
	return localdb.GetLastSpin(ctx, userID)
}

func (s *SQLiteStore) TouchLastSpin(ctx context.Context, userID string) (time.Time, error) {
	return localdb.TouchLastSpin(ctx, userID)
}

func (s *SQLiteStore) ResetLastSpin(ctx context.Context, userID string) error {
	return localdb.DeleteSpinRecord(ctx, userID)
}

// Close is a no-op; the shared connection belongs to localdb.
func (s *SQLiteStore) Close() error {
	return nil
}

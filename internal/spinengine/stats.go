package spinengine

import (
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/types"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// StatsKey はブラウザ版と同じ保存キー
const StatsKey = "spinwheel-stats-v1"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KeyValueStore persists small local values (stats, cached spin time).
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

func loadStats(kv KeyValueStore) types.SpinStats {
	var stats types.SpinStats
	if kv == nil {
		return stats
	}
	raw, ok := kv.Get(StatsKey)
	if !ok || raw == "" {
		return stats
	}
	if err := json.UnmarshalFromString(raw, &stats); err != nil {
		logger.Warn("Ignoring corrupt spin stats", zap.Error(err))
		return types.SpinStats{}
	}
	if stats.SpinsCount < 0 {
		stats.SpinsCount = 0
	}
	return stats
}

func saveStats(kv KeyValueStore, stats types.SpinStats) error {
	if kv == nil {
		return nil
	}
	raw, err := json.MarshalToString(stats)
	if err != nil {
		return err
	}
	return kv.Set(StatsKey, raw)
}

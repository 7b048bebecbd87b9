package env

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/settings"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type EnvValue struct {
	ServerPort    int
	DebugMode     bool
	PublicBaseURL string
	LogDir        string

	JWTSecret *string
	JWTIssuer string

	RecordBackend string
	RedisAddr     string
	RedisPassword *string
	MySQLDSN      *string

	Cooldown              time.Duration
	FailOpen              bool
	ReducedMotion         bool
	ExtraRotations        int
	ReducedExtraRotations int
	PrizeDraw             bool
	DefaultTarget         string

	WorkerPoolSize int
}

var (
	Value EnvValue
	mu    sync.Mutex
)

var errNoDB = errors.New("database not initialized")

// LoadEnv reads .env, migrates environment values into the settings table and
// populates Value. Must run after localdb.SetupDB.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug(".env not loaded", zap.Error(err))
	}

	if db := localdb.GetDB(); db != nil {
		sm := settings.NewSettingsManager(db)
		if err := sm.MigrateFromEnv(); err != nil {
			logger.Error("Failed to migrate settings from environment", zap.Error(err))
		}
		if err := sm.InitializeDefaultSettings(); err != nil {
			logger.Error("Failed to initialize default settings", zap.Error(err))
		}
	}

	if err := ReloadFromDatabase(); err != nil {
		logger.Warn("Using built-in defaults", zap.Error(err))
		mu.Lock()
		Value = fromLookup(func(key string) string { return settings.DefaultSettings[key].Value })
		mu.Unlock()
	}
}

// ReloadFromDatabase refreshes Value from the settings table.
func ReloadFromDatabase() error {
	db := localdb.GetDB()
	if db == nil {
		return errNoDB
	}
	sm := settings.NewSettingsManager(db)

	v := fromLookup(func(key string) string {
		val, err := sm.GetRealValue(key)
		if err != nil {
			logger.Warn("Failed to read setting", zap.String("key", key), zap.Error(err))
			return settings.DefaultSettings[key].Value
		}
		return val
	})

	mu.Lock()
	Value = v
	mu.Unlock()
	return nil
}

func fromLookup(get func(key string) string) EnvValue {
	v := EnvValue{
		ServerPort:            intOr(get("SERVER_PORT"), 8080),
		DebugMode:             get("DEBUG_OUTPUT") == "true",
		PublicBaseURL:         strings.TrimRight(get("PUBLIC_BASE_URL"), "/"),
		LogDir:                get("LOG_DIR"),
		JWTIssuer:             get("JWT_ISSUER"),
		RecordBackend:         strings.ToLower(get("RECORD_STORE_BACKEND")),
		RedisAddr:             get("REDIS_ADDR"),
		Cooldown:              hoursOr(get("WHEEL_COOLDOWN_HOURS"), 48*time.Hour),
		FailOpen:              get("WHEEL_FAIL_OPEN") != "false",
		ReducedMotion:         get("WHEEL_REDUCED_MOTION") == "true",
		ExtraRotations:        intOr(get("WHEEL_EXTRA_ROTATIONS"), 4),
		ReducedExtraRotations: intOr(get("WHEEL_REDUCED_EXTRA_ROTATIONS"), 1),
		PrizeDraw:             get("WHEEL_PRIZE_DRAW_ENABLED") == "true",
		DefaultTarget:         get("WHEEL_DETERMINISTIC_TARGET"),
		WorkerPoolSize:        intOr(get("WORKER_POOL_SIZE"), 4),
	}
	if s := get("JWT_SECRET"); s != "" {
		v.JWTSecret = &s
	}
	if s := get("REDIS_PASSWORD"); s != "" {
		v.RedisPassword = &s
	}
	if s := get("MYSQL_DSN"); s != "" {
		v.MySQLDSN = &s
	}
	return v
}

func intOr(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func hoursOr(s string, def time.Duration) time.Duration {
	h, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || h <= 0 {
		return def
	}
	return time.Duration(h * float64(time.Hour))
}

package settings

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal SettingType = "normal"
	SettingTypeSecret SettingType = "secret"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// 認証設定（機密情報）
	"JWT_SECRET": {
		Key: "JWT_SECRET", Value: "", Type: SettingTypeSecret, Required: true,
		Description: "HMAC secret used to verify identity tokens",
	},
	"JWT_ISSUER": {
		Key: "JWT_ISSUER", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Expected issuer of identity tokens (empty = any)",
	},

	// 記録ストア設定
	"RECORD_STORE_BACKEND": {
		Key: "RECORD_STORE_BACKEND", Value: "sqlite", Type: SettingTypeNormal, Required: false,
		Description: "Spin record backend (sqlite, redis or mysql)",
	},
	"REDIS_ADDR": {
		Key: "REDIS_ADDR", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Redis address(es), comma separated",
	},
	"REDIS_PASSWORD": {
		Key: "REDIS_PASSWORD", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Redis password",
	},
	"MYSQL_DSN": {
		Key: "MYSQL_DSN", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "MySQL DSN for the spin record table",
	},

	// ホイール設定
	"WHEEL_COOLDOWN_HOURS": {
		Key: "WHEEL_COOLDOWN_HOURS", Value: "48", Type: SettingTypeNormal, Required: false,
		Description: "Hours a user must wait between spins",
	},
	"WHEEL_FAIL_OPEN": {
		Key: "WHEEL_FAIL_OPEN", Value: "true", Type: SettingTypeNormal, Required: false,
		Description: "Allow spinning when the record store cannot be read",
	},
	"WHEEL_REDUCED_MOTION": {
		Key: "WHEEL_REDUCED_MOTION", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Use the reduced motion spin profile",
	},
	"WHEEL_EXTRA_ROTATIONS": {
		Key: "WHEEL_EXTRA_ROTATIONS", Value: "4", Type: SettingTypeNormal, Required: false,
		Description: "Full turns before a targeted spin lands",
	},
	"WHEEL_REDUCED_EXTRA_ROTATIONS": {
		Key: "WHEEL_REDUCED_EXTRA_ROTATIONS", Value: "1", Type: SettingTypeNormal, Required: false,
		Description: "Full turns before a targeted spin lands (reduced motion)",
	},
	"WHEEL_PRIZE_DRAW_ENABLED": {
		Key: "WHEEL_PRIZE_DRAW_ENABLED", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Pick the landing segment by weighted draw",
	},
	"WHEEL_DETERMINISTIC_TARGET": {
		Key: "WHEEL_DETERMINISTIC_TARGET", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Segment id every untargeted spin lands on (empty = random)",
	},

	// 動作設定
	"DEBUG_OUTPUT": {
		Key: "DEBUG_OUTPUT", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable debug output",
	},
	"WORKER_POOL_SIZE": {
		Key: "WORKER_POOL_SIZE", Value: "4", Type: SettingTypeNormal, Required: false,
		Description: "Workers for background record writes",
	},
	"LOG_DIR": {
		Key: "LOG_DIR", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Directory for rotating log files (empty = data dir)",
	},

	// サーバー設定
	"SERVER_PORT": {
		Key: "SERVER_PORT", Value: "8080", Type: SettingTypeNormal, Required: false,
		Description: "Web server port",
	},
	"PUBLIC_BASE_URL": {
		Key: "PUBLIC_BASE_URL", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Public URL used in prize claim QR codes",
	},
}

// 機能の有効性チェック
type FeatureStatus struct {
	AuthConfigured        bool     `json:"auth_configured"`
	RecordStoreConfigured bool     `json:"record_store_configured"`
	RecordStoreBackend    string   `json:"record_store_backend"`
	MissingSettings       []string `json:"missing_settings"`
	Warnings              []string `json:"warnings"`
	ServiceMode           bool     `json:"service_mode"` // systemdサービスとして実行されているか
	WebSocketClients      int      `json:"websocket_clients"`
}

func (sm *SettingsManager) CheckFeatureStatus() (*FeatureStatus, error) {
	status := &FeatureStatus{
		MissingSettings: []string{},
		Warnings:        []string{},
		ServiceMode:     os.Getenv("RUNNING_AS_SERVICE") == "true",
	}

	if secret, err := sm.GetRealValue("JWT_SECRET"); err != nil || secret == "" {
		status.MissingSettings = append(status.MissingSettings, "JWT_SECRET")
	} else {
		status.AuthConfigured = true
	}

	backend, _ := sm.GetSetting("RECORD_STORE_BACKEND")
	status.RecordStoreBackend = backend
	switch backend {
	case "redis":
		if addr, _ := sm.GetSetting("REDIS_ADDR"); addr == "" {
			status.MissingSettings = append(status.MissingSettings, "REDIS_ADDR")
		} else {
			status.RecordStoreConfigured = true
		}
	case "mysql":
		if dsn, _ := sm.GetRealValue("MYSQL_DSN"); dsn == "" {
			status.MissingSettings = append(status.MissingSettings, "MYSQL_DSN")
		} else {
			status.RecordStoreConfigured = true
		}
	default:
		status.RecordStoreConfigured = true
		status.Warnings = append(status.Warnings, "Spin records are kept in the local database only")
	}

	if failOpen, _ := sm.GetSetting("WHEEL_FAIL_OPEN"); failOpen == "true" {
		status.Warnings = append(status.Warnings, "WHEEL_FAIL_OPEN is enabled - spins are allowed when records cannot be read")
	}

	return status, nil
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String // NullStringから通常のstringへ変換
		s.HasValue = s.Value != ""

		settings[s.Key] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			defaultSetting.HasValue = defaultSetting.Value != ""
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 実際の値を取得（マスクなし）- 内部処理用
func (sm *SettingsManager) GetRealValue(key string) (string, error) {
	return sm.GetSetting(key)
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	logger.Info("Starting migration from environment variables")
	migrated := 0

	for key := range DefaultSettings {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		// 環境変数から取得
		if envValue := os.Getenv(key); envValue != "" {
			if err := ValidateSetting(key, envValue); err != nil {
				logger.Warn("Skipping invalid environment setting", zap.String("key", key), zap.Error(err))
				continue
			}
			if err := sm.SetSetting(key, envValue); err != nil {
				logger.Error("Failed to migrate setting", zap.String("key", key), zap.Error(err))
				return fmt.Errorf("failed to migrate %s: %w", key, err)
			}
			logger.Info("Migrated setting from environment", zap.String("key", key))
			migrated++
		}
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))

		// セキュリティ警告を表示
		if hasSecretInEnv() {
			logger.Warn("SECURITY WARNING: Sensitive data found in environment variables.")
			logger.Warn("Please remove JWT_SECRET and other sensitive values from .env file after confirming the migration is successful.")
		}
	}

	return nil
}

func hasSecretInEnv() bool {
	for key, s := range DefaultSettings {
		if s.Type == SettingTypeSecret && os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "SERVER_PORT":
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 65535 {
			return fmt.Errorf("must be integer between 1 and 65535")
		}
	case "WHEEL_COOLDOWN_HOURS":
		if val, err := strconv.ParseFloat(value, 64); err != nil || val <= 0 || val > 24*365 {
			return fmt.Errorf("must be a positive number of hours")
		}
	case "WHEEL_EXTRA_ROTATIONS", "WHEEL_REDUCED_EXTRA_ROTATIONS":
		if val, err := strconv.Atoi(value); err != nil || val < 0 || val > 20 {
			return fmt.Errorf("must be integer between 0 and 20")
		}
	case "WORKER_POOL_SIZE":
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 256 {
			return fmt.Errorf("must be integer between 1 and 256")
		}
	case "RECORD_STORE_BACKEND":
		switch strings.ToLower(value) {
		case "sqlite", "redis", "mysql":
		default:
			return fmt.Errorf("must be one of sqlite, redis or mysql")
		}
	case "PUBLIC_BASE_URL":
		if value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("must be an absolute http(s) URL")
			}
		}
	case "WHEEL_FAIL_OPEN", "WHEEL_REDUCED_MOTION", "WHEEL_PRIZE_DRAW_ENABLED", "DEBUG_OUTPUT":
		// boolean値のチェック
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		// デフォルト値で初期化
		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}

package webserver

import (
	"net/http"

	"github.com/ichi0g0y/spinwheel/internal/env"
	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/settings"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"go.uber.org/zap"
)

func settingsManager(w http.ResponseWriter) *settings.SettingsManager {
	db := localdb.GetDB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database not initialized")
		return nil
	}
	return settings.NewSettingsManager(db)
}

// handleSettings returns or updates the settings table. Secret values are
// never returned, only whether they are set.
func handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		handleGetSettings(w)
	case http.MethodPut:
		handlePutSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleGetSettings(w http.ResponseWriter) {
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	all, err := sm.GetAllSettings()
	if err != nil {
		logger.Error("Failed to get settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to get settings")
		return
	}
	for key, s := range all {
		if s.Type == settings.SettingTypeSecret {
			s.Value = ""
			all[key] = s
		}
	}

	status, err := sm.CheckFeatureStatus()
	if err != nil {
		logger.Warn("Failed to check feature status", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings": all,
		"status":   status,
	})
}

func handlePutSettings(w http.ResponseWriter, r *http.Request) {
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no settings given")
		return
	}

	// 全部検証してから保存する
	for key, value := range req {
		if _, ok := settings.DefaultSettings[key]; !ok {
			writeError(w, http.StatusBadRequest, "unknown_setting", "unknown setting: "+key)
			return
		}
		if err := settings.ValidateSetting(key, value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_setting", err.Error())
			return
		}
	}
	for key, value := range req {
		if err := sm.SetSetting(key, value); err != nil {
			logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to save settings")
			return
		}
	}

	if err := env.ReloadFromDatabase(); err != nil {
		logger.Warn("Failed to reload settings", zap.Error(err))
	}
	if fn := currentServices().OnSettingsChanged; fn != nil {
		fn()
	}

	logger.Info("Settings updated", zap.Int("count", len(req)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": len(req),
	})
}

// handleSettingsStatus returns which features are configured.
func handleSettingsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	status, err := sm.CheckFeatureStatus()
	if err != nil {
		logger.Error("Failed to check feature status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to check feature status")
		return
	}
	status.WebSocketClients = ClientCount()
	writeJSON(w, http.StatusOK, status)
}

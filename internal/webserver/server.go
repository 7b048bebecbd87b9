package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/identity"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/version"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 3 * time.Second

// Services are the collaborators the handlers call into.
type Services struct {
	Engine  *spinengine.Engine
	Session *identity.Session
	// OnSettingsChanged runs after /api/settings saved new values.
	OnSettingsChanged func()
}

var (
	servicesMu sync.RWMutex
	services   Services
)

// SetServices installs the engine and session used by the handlers.
func SetServices(s Services) {
	servicesMu.Lock()
	services = s
	servicesMu.Unlock()
}

func currentServices() Services {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return services
}

// Broadcaster returns the engine broadcaster backed by the WebSocket hub.
func Broadcaster() spinengine.Broadcaster {
	return spinengine.BroadcastFunc(BroadcastWSMessage)
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Wheel
	mux.HandleFunc("/api/wheel", corsMiddleware(handleWheel))
	mux.HandleFunc("/api/wheel/segments", corsMiddleware(handleWheelSegments))
	mux.HandleFunc("/api/wheel/spin", corsMiddleware(handleWheelSpin))
	mux.HandleFunc("/api/wheel/nudge", corsMiddleware(handleWheelNudge))
	mux.HandleFunc("/api/wheel/stats", corsMiddleware(handleWheelStats))
	mux.HandleFunc("/api/wheel/history", corsMiddleware(handleWheelHistory))
	mux.HandleFunc("/api/wheel/history/", corsMiddleware(handleWheelHistoryByID))
	mux.HandleFunc("/api/wheel/outcomes/", corsMiddleware(handleOutcomeQR))
	mux.HandleFunc("/api/wheel/cooldown/", corsMiddleware(handleCooldownReset))

	// Session / settings
	mux.HandleFunc("/api/session", corsMiddleware(handleSession))
	mux.HandleFunc("/api/settings/status", corsMiddleware(handleSettingsStatus))
	mux.HandleFunc("/api/settings", corsMiddleware(handleSettings))

	// Logs
	mux.HandleFunc("/api/logs", corsMiddleware(handleLogs))
	mux.HandleFunc("/api/logs/download", corsMiddleware(handleLogsDownload))

	mux.HandleFunc("/api/version", corsMiddleware(handleVersion))
	mux.Handle("/metrics", promhttp.Handler())

	RegisterWebSocketRoute(mux)
	return mux
}

// Serve runs the web server until ctx is cancelled, then shuts it down
// gracefully. It returns an error only when the port cannot be served.
func Serve(ctx context.Context, port int) error {
	StartWSHub()

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(),
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("Failed to start web server", zap.Error(err))
		return fmt.Errorf("failed to start web server on port %d: %w", port, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
		return nil
	}
	logger.Info("Web server shutdown complete")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// handleVersion returns build information
func handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, version.Info())
}

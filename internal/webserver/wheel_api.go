package webserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ichi0g0y/spinwheel/internal/eligibility"
	"github.com/ichi0g0y/spinwheel/internal/env"
	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	defaultQRSize       = 256
	maxQRSize           = 1024
)

type spinRequest struct {
	TargetID string `json:"target_id"`
}

type nudgeRequest struct {
	Direction string `json:"direction"`
}

type segmentsRequest struct {
	Segments []types.Segment `json:"segments"`
}

func requireEngine(w http.ResponseWriter) *spinengine.Engine {
	engine := currentServices().Engine
	if engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "wheel is not ready")
	}
	return engine
}

// spinErrorBody maps a RequestSpin error to an HTTP status and a JSON body.
// The same body is sent to WebSocket clients as wheel_error.
func spinErrorBody(err error) (int, map[string]interface{}) {
	body := map[string]interface{}{"message": err.Error()}

	var cooldown *spinengine.CooldownError
	var cfgErr *spinengine.ConfigError
	switch {
	case errors.Is(err, spinengine.ErrLoginRequired):
		body["error"] = "login_required"
		return http.StatusUnauthorized, body
	case errors.As(err, &cooldown):
		body["error"] = "cooldown"
		body["remaining_ns"] = cooldown.Remaining
		body["remaining_text"] = eligibility.FormatRemaining(cooldown.Remaining)
		return http.StatusTooManyRequests, body
	case errors.Is(err, spinengine.ErrAlreadySpinning):
		body["error"] = "already_spinning"
		return http.StatusConflict, body
	case errors.As(err, &cfgErr):
		body["error"] = "invalid_config"
		return http.StatusBadRequest, body
	case errors.Is(err, spinengine.ErrClosed):
		body["error"] = "unavailable"
		return http.StatusServiceUnavailable, body
	default:
		body["error"] = "internal"
		return http.StatusInternalServerError, body
	}
}

// handleWheel returns the wheel snapshot.
func handleWheel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := requireEngine(w)
	if engine == nil {
		return
	}
	writeJSON(w, http.StatusOK, engine.Snapshot())
}

// handleWheelSegments replaces and persists the segment list.
func handleWheelSegments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		engine := requireEngine(w)
		if engine == nil {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"segments": engine.Snapshot().Segments})
	case http.MethodPut:
		handlePutWheelSegments(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handlePutWheelSegments(w http.ResponseWriter, r *http.Request) {
	engine := requireEngine(w)
	if engine == nil {
		return
	}

	var req segmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	// 並び替えでIDがずれないようにここで採番する
	for i := range req.Segments {
		req.Segments[i].Name = strings.TrimSpace(req.Segments[i].Name)
		if req.Segments[i].ID != "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			logger.Error("Failed to generate segment id", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to generate segment id")
			return
		}
		req.Segments[i].ID = id
	}

	if err := engine.SetSegments(req.Segments); err != nil {
		status, body := spinErrorBody(err)
		body["segments"] = engine.Snapshot().Segments
		writeJSON(w, status, body)
		return
	}

	snap := engine.Snapshot()
	if err := localdb.SaveWheelSegments(snap.Segments); err != nil {
		logger.Error("Failed to save wheel segments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to save wheel segments")
		return
	}

	logger.Info("Wheel segments updated", zap.Int("count", len(snap.Segments)))
	writeJSON(w, http.StatusOK, snap)
}

// handleWheelSpin starts a spin for the signed-in user.
func handleWheelSpin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := requireEngine(w)
	if engine == nil {
		return
	}

	var req spinRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}

	ticket, err := engine.RequestSpin(strings.TrimSpace(req.TargetID))
	if err != nil {
		status, body := spinErrorBody(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusAccepted, ticket)
}

// handleWheelNudge rotates the idle wheel by a small step.
func handleWheelNudge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := requireEngine(w)
	if engine == nil {
		return
	}

	var req nudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	dir, ok := wheel.ParseDirection(req.Direction)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_direction", "direction must be left or right")
		return
	}

	if !engine.Nudge(dir) {
		writeError(w, http.StatusConflict, "not_idle", "wheel cannot be nudged right now")
		return
	}
	writeJSON(w, http.StatusOK, engine.State())
}

// handleWheelStats returns the local spin counters.
func handleWheelStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := requireEngine(w)
	if engine == nil {
		return
	}
	writeJSON(w, http.StatusOK, engine.Stats())
}

// handleWheelHistory lists recent spin outcomes.
func handleWheelHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	history, err := localdb.GetSpinHistory(limit)
	if err != nil {
		logger.Error("Failed to get spin history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to get spin history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// handleWheelHistoryByID deletes one history row: DELETE /api/wheel/history/{id}
func handleWheelHistoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/wheel/history/"), "/")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid history id")
		return
	}

	if err := localdb.DeleteSpinHistory(id); err != nil {
		if errors.Is(err, localdb.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "History not found")
			return
		}
		logger.Error("Failed to delete spin history", zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to delete spin history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleCooldownReset clears a user's spin record: DELETE /api/wheel/cooldown/{user_id}
func handleCooldownReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	engine := requireEngine(w)
	if engine == nil {
		return
	}

	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/wheel/cooldown/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_user", "User id is required")
		return
	}

	if err := engine.ResetCooldown(r.Context(), userID); err != nil {
		logger.Error("Failed to reset cooldown", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to reset cooldown")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"user_id":     userID,
		"eligibility": engine.Eligibility(),
	})
}

// handleOutcomeQR renders a claim QR code: GET /api/wheel/outcomes/{id}/qr
func handleOutcomeQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/wheel/outcomes/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "qr" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	outcomeID := parts[0]

	known, err := outcomeExists(outcomeID)
	if err != nil {
		logger.Error("Failed to look up outcome", zap.String("outcome_id", outcomeID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to look up outcome")
		return
	}
	if !known {
		writeError(w, http.StatusNotFound, "not_found", "Outcome not found")
		return
	}

	size := defaultQRSize
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 {
		size = min(s, maxQRSize)
	}

	png, err := qrcode.Encode(claimURL(outcomeID), qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to encode QR code", zap.String("outcome_id", outcomeID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Failed to encode QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// outcomeExists checks history first, then the outcome still waiting for its
// history write.
func outcomeExists(outcomeID string) (bool, error) {
	if _, err := localdb.GetSpinHistoryByOutcome(outcomeID); err == nil {
		return true, nil
	} else if !errors.Is(err, localdb.ErrNotFound) && !errors.Is(err, localdb.ErrNotInitialized) {
		return false, err
	}

	if engine := currentServices().Engine; engine != nil {
		if last := engine.Snapshot().LastOutcome; last != nil && last.ID == outcomeID && last.Winner != nil {
			return true, nil
		}
	}
	return false, nil
}

func claimURL(outcomeID string) string {
	base := strings.TrimRight(env.Value.PublicBaseURL, "/")
	if base == "" {
		port := env.Value.ServerPort
		if port == 0 {
			port = 8080
		}
		base = fmt.Sprintf("http://localhost:%d", port)
	}
	return base + "/claim/" + outcomeID
}

package webserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ichi0g0y/spinwheel/internal/identity"
)

type signInRequest struct {
	Token string `json:"token"`
}

// handleSession reports, opens or closes the sign-in session.
func handleSession(w http.ResponseWriter, r *http.Request) {
	session := currentServices().Session
	if session == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "session is not ready")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeSessionResponse(w, http.StatusOK, session.Info())

	case http.MethodPost:
		token := bearerToken(r)
		if token == "" {
			var req signInRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
				return
			}
			token = strings.TrimSpace(req.Token)
		}
		if token == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
			return
		}

		info, err := session.SignIn(token)
		switch {
		case errors.Is(err, identity.ErrNoSecret):
			writeError(w, http.StatusServiceUnavailable, "auth_not_configured", "JWT_SECRET is not configured")
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid identity token")
			return
		}
		writeSessionResponse(w, http.StatusOK, info)

	case http.MethodDelete:
		session.SignOut()
		writeSessionResponse(w, http.StatusOK, session.Info())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeSessionResponse(w http.ResponseWriter, status int, info identity.SessionInfo) {
	response := map[string]interface{}{
		"authenticated": info.User != nil,
		"session":       info,
	}
	if engine := currentServices().Engine; engine != nil {
		response["eligibility"] = engine.Eligibility()
	}
	writeJSON(w, status, response)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

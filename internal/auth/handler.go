package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler serves token issuance for local development. Production tokens
// come from the upstream identity provider.
type Handler struct {
	tokenSvc *TokenService
}

func NewHandler(tokenSvc *TokenService) *Handler {
	return &Handler{tokenSvc: tokenSvc}
}

// RegisterDevRoutes mounts the dev token endpoint. Only call in dev mode.
func (h *Handler) RegisterDevRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/dev/token", h.HandleDevToken)
}

// HandleDevToken signs an access token for the identity in the request body.
func (h *Handler) HandleDevToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req struct {
		UserID         string   `json:"user_id"`
		OrganizationID string   `json:"organization_id"`
		Roles          []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	token, err := h.tokenSvc.CreateAccessToken(&Identity{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Roles:          req.Roles,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

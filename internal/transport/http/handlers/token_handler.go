package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/service"
)

type TokenHandler struct {
	tokenService *service.TokenService
	logger       zerolog.Logger
}

func NewTokenHandler(tokenService *service.TokenService, logger zerolog.Logger) *TokenHandler {
	return &TokenHandler{tokenService: tokenService, logger: logger}
}

type tokenRequest struct {
	UserID string `json:"userId"`
}

// Issue answers POST /api/token. Unlike /api/v1 it uses the flat
// {"error": "..."} body that token consumers expect.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var input tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	token, user, err := h.tokenService.Issue(r.Context(), input.UserID)
	if err != nil {
		if errors.Is(err, service.ErrMissingUserID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing userId"})
			return
		}
		h.logger.Error().Err(err).Msg("generating token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}

	h.logger.Debug().Str("user_id", user.ID).Msg("token issued")
	writeJSON(w, http.StatusOK, service.TokenResponse{Token: token})
}

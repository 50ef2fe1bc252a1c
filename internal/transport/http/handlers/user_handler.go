package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type UserHandler struct {
	directory *service.DirectoryService
	logger    zerolog.Logger
}

func NewUserHandler(directory *service.DirectoryService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{directory: directory, logger: logger}
}

type UpdateProfileInput struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := service.DefaultDirectoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= service.MaxDirectoryLimit {
			limit = l
		}
	}

	users, err := h.directory.List(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list users")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.directory.Get(r.Context(), userID)
	if err != nil {
		h.writeLookupError(w, err, "get me")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input UpdateProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.Name != "" {
		if errs := validator.ValidateDisplayName(input.Name); errs.HasErrors() {
			writeValidationErrors(w, errs)
			return
		}
	}

	user, err := h.directory.UpdateProfile(r.Context(), userID, input.Name, input.Image)
	if err != nil {
		h.writeLookupError(w, err, "update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) writeLookupError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	h.logger.Error().Err(err).Msg(op)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
}

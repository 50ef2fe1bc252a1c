package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type ChannelHandler struct {
	channelService *service.ChannelService
	logger         zerolog.Logger
}

func NewChannelHandler(channelService *service.ChannelService, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{channelService: channelService, logger: logger}
}

type CreateChannelInput struct {
	Members []string `json:"members"`
}

// Create resolves the direct channel for a member pair that includes the
// caller. Repeated calls return the same channel.
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input CreateChannelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if len(input.Members) != 2 {
		writeError(w, http.StatusBadRequest, "INVALID_MEMBERS", "A direct channel has exactly two members")
		return
	}

	var peerID string
	switch userID {
	case input.Members[0]:
		peerID = input.Members[1]
	case input.Members[1]:
		peerID = input.Members[0]
	default:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You must be a member of the channel")
		return
	}
	if errs := validator.ValidateUserID("members", peerID); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	ch, err := h.channelService.GetOrCreateDirect(r.Context(), userID, peerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCannotDMSelf):
			writeError(w, http.StatusBadRequest, "CANNOT_DM_SELF", "Cannot start a conversation with yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			h.logger.Error().Err(err).Msg("get or create channel")
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := parseChannelID(w, r)
	if !ok {
		return
	}

	ch, err := h.channelService.Get(r.Context(), userID, channelID)
	if err != nil {
		writeChannelError(w, h.logger, err, "get channel")
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func parseChannelID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeChannelError(w http.ResponseWriter, logger zerolog.Logger, err error, op string) {
	switch {
	case errors.Is(err, service.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
	default:
		logger.Error().Err(err).Msg(op)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

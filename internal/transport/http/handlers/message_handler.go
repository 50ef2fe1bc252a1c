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

type MessageHandler struct {
	messageService *service.MessageService
	channelService *service.ChannelService
	logger         zerolog.Logger
}

func NewMessageHandler(messageService *service.MessageService, channelService *service.ChannelService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		channelService: channelService,
		logger:         logger,
	}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := parseChannelID(w, r)
	if !ok {
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, channelID, input)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeValidationErrors(w, verrs)
			return
		}
		writeChannelError(w, h.logger, err, "send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, ok := parseChannelID(w, r)
	if !ok {
		return
	}

	var before *string
	if b := r.URL.Query().Get("before"); b != "" {
		before = &b
	}

	limit := service.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= service.MaxHistoryLimit {
			limit = l
		}
	}

	resp, err := h.channelService.ListMessages(r.Context(), userID, channelID, before, limit)
	if err != nil {
		writeChannelError(w, h.logger, err, "list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

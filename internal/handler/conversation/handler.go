package conversation

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/conversation"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

// Users 查询参与者资料。
type Users interface {
	Get(ctx context.Context, userID string) (user.User, error)
}

// Orchestrator 是发送流程的服务接口。
type Orchestrator interface {
	GeneratePreview(ctx context.Context, text string, sender, recipient user.User) (*conversation.PreviewResult, error)
	PendingPreview(senderID, conversationID string) (*conversation.Preview, bool)
	ConfirmSend(ctx context.Context, sender, recipient user.User) (*chat.Message, error)
	CancelPreview(senderID, conversationID string) bool
	SendMessage(ctx context.Context, text string, sender, recipient user.User) (*conversation.SendResult, error)
	IsSending(senderID, conversationID string) bool
}

// Handler 会话消息的HTTP处理器
type Handler struct {
	users    Users
	sender   Orchestrator
	messages chat.Store
	limit    func(http.Handler) http.Handler
	log      *logger.Logger
}

// New 创建会话处理器。limit 用于发送类接口，可为 nil。
func New(users Users, sender Orchestrator, messages chat.Store, limit func(http.Handler) http.Handler, log *logger.Logger) *Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{users: users, sender: sender, messages: messages, limit: limit, log: log}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations/{partnerID}", func(cr chi.Router) {
		cr.Get("/messages", h.handleListMessages)
		cr.With(h.limit).Post("/messages", h.handleSendMessage)
		cr.With(h.limit).Post("/preview", h.handleGeneratePreview)
		cr.Get("/preview", h.handleGetPreview)
		cr.Delete("/preview", h.handleCancelPreview)
		cr.With(h.limit).Post("/preview/confirm", h.handleConfirmPreview)
		cr.Get("/status", h.handleStatus)
	})
}

type textRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type statusResponse struct {
	Sending        bool `json:"sending"`
	PreviewPending bool `json:"previewPending"`
}

// participants resolves the session user and the partner from the path.
func (h *Handler) participants(w http.ResponseWriter, r *http.Request) (user.User, user.User, bool) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing session")
		return user.User{}, user.User{}, false
	}

	me, err := h.users.Get(r.Context(), session.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return user.User{}, user.User{}, false
	}

	partnerID := chi.URLParam(r, "partnerID")
	if partnerID == me.ID {
		utils.RespondError(w, http.StatusBadRequest, conversation.ErrInvalidRecipient.Error())
		return user.User{}, user.User{}, false
	}
	partner, err := h.users.Get(r.Context(), partnerID)
	if err != nil {
		h.respondServiceError(w, err)
		return user.User{}, user.User{}, false
	}
	return me, partner, true
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	msgs, err := h.messages.List(r.Context(), chat.ConversationID(me.ID, partner.ID))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload textRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	res, err := h.sender.SendMessage(r.Context(), payload.Text, me, partner)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGeneratePreview(w http.ResponseWriter, r *http.Request) {
	var payload textRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	res, err := h.sender.GeneratePreview(r.Context(), payload.Text, me, partner)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	preview, pending := h.sender.PendingPreview(me.ID, chat.ConversationID(me.ID, partner.ID))
	if !pending {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleCancelPreview(w http.ResponseWriter, r *http.Request) {
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}
	convID := chat.ConversationID(me.ID, partner.ID)
	if !h.sender.CancelPreview(me.ID, convID) && h.sender.IsSending(me.ID, convID) {
		// the preview is already being committed
		utils.RespondError(w, http.StatusConflict, conversation.ErrSendInProgress.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmPreview(w http.ResponseWriter, r *http.Request) {
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	msg, err := h.sender.ConfirmSend(r.Context(), me, partner)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	me, partner, ok := h.participants(w, r)
	if !ok {
		return
	}

	convID := chat.ConversationID(me.ID, partner.ID)
	_, pending := h.sender.PendingPreview(me.ID, convID)
	utils.RespondJSON(w, http.StatusOK, statusResponse{
		Sending:        h.sender.IsSending(me.ID, convID),
		PreviewPending: pending,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyText),
		errors.Is(err, conversation.ErrLanguageUnset),
		errors.Is(err, conversation.ErrInvalidRecipient):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrPreviewPending),
		errors.Is(err, conversation.ErrSendInProgress),
		errors.Is(err, conversation.ErrPreviewStale):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrSentimentFailed):
		h.log.Warn("sentiment analysis unavailable", "error", err.Error())
		utils.RespondError(w, http.StatusBadGateway, conversation.ErrSentimentFailed.Error())
	default:
		h.log.LogError(err, "conversation request failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to send message")
	}
}

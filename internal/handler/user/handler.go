package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/identity"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

// Identity 是处理器依赖的身份服务。
type Identity interface {
	Register(ctx context.Context, name, language string) (user.User, string, error)
	SetLanguage(ctx context.Context, userID, language string) (user.User, error)
	Get(ctx context.Context, userID string) (user.User, error)
	Heartbeat(ctx context.Context, userID string) error
	Roster(ctx context.Context, selfID string) ([]user.User, error)
	Logout(ctx context.Context, userID string) error
}

// Handler 用户与在线状态的HTTP处理器
type Handler struct {
	identity Identity
	log      *logger.Logger
}

// New 创建用户处理器
func New(identity Identity, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{identity: identity, log: log}
}

// RegisterPublicRoutes 注册无需登录的路由
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/users", h.handleRegister)
}

// RegisterRoutes 注册需要会话的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleRoster)
	r.Get("/users/me", h.handleMe)
	r.Put("/users/me/language", h.handleSetLanguage)
	r.Post("/users/me/heartbeat", h.handleHeartbeat)
	r.Delete("/users/me", h.handleLogout)
	r.Get("/users/{userID}", h.handleGet)
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Language string `json:"language"`
}

type registerResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, token, err := h.identity.Register(r.Context(), payload.Name, payload.Language)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, registerResponse{User: u, Token: token})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	u, err := h.identity.Get(r.Context(), session.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

type languageRequest struct {
	Language string `json:"language" validate:"required"`
}

func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var payload languageRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, _ := auth.FromContext(r.Context())
	u, err := h.identity.SetLanguage(r.Context(), session.UserID, payload.Language)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	if err := h.identity.Heartbeat(r.Context(), session.UserID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	if err := h.identity.Logout(r.Context(), session.UserID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRoster(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	roster, err := h.identity.Roster(r.Context(), session.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, roster)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.identity.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrNameRequired), errors.Is(err, identity.ErrUnsupportedLanguage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, user.ErrDuplicateName):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.log.LogError(err, "user request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

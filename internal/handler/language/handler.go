package language

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/convosense/backend/internal/model/language"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

// Handler 语言列表的HTTP处理器
type Handler struct {
	registry *language.Registry
}

// New 创建语言处理器
func New(registry *language.Registry) *Handler {
	if registry == nil {
		registry = language.Default
	}
	return &Handler{registry: registry}
}

// RegisterRoutes 注册语言相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/languages", h.handleListLanguages)
}

func (h *Handler) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.List())
}

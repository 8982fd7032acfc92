package feed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	sseKeepAlive = 15 * time.Second
)

// Subscriber 提供会话快照流。
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan []chat.Message, error)
}

// Users 查询参与者资料。
type Users interface {
	Get(ctx context.Context, userID string) (user.User, error)
}

// Handler 实时消息推送处理器，支持 WebSocket 与 SSE。
type Handler struct {
	feed     Subscriber
	users    Users
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// New 创建推送处理器。origins 与 CORS_ORIGINS 一致，"*" 放行全部来源。
func New(feed Subscriber, users Users, origins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		feed:  feed,
		users: users,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(origins),
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

// RegisterRoutes 注册推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{partnerID}/ws", h.handleWebSocket)
	r.Get("/conversations/{partnerID}/events", h.handleEvents)
}

type outgoingMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// conversationFor resolves the conversation between the session user and the path partner.
func (h *Handler) conversationFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing session")
		return "", false
	}

	partnerID := chi.URLParam(r, "partnerID")
	if partnerID == "" || partnerID == session.UserID {
		utils.RespondError(w, http.StatusBadRequest, "partner must be another user")
		return "", false
	}

	if _, err := h.users.Get(r.Context(), partnerID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return "", false
		}
		h.log.LogError(err, "partner lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return "", false
	}

	return chat.ConversationID(session.UserID, partnerID), true
}

// handleWebSocket 推送会话快照，每次追加后发送完整列表。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.conversationFor(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshots, err := h.feed.Subscribe(ctx, conversationID)
	if err != nil {
		h.log.LogError(err, "feed subscribe failed", "conversation", conversationID)
		utils.RespondError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	log := h.log.With("conversation", conversationID)
	log.Debug("websocket connected")

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients never send payloads; the read loop only services control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read error", "error", err.Error())
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outgoingMessage{
				Type:           "snapshot",
				ConversationID: conversationID,
				Data:           snap,
				Timestamp:      time.Now().Unix(),
			}); err != nil {
				log.Warn("websocket write failed", "error", err.Error())
				return
			}
		}
	}
}

// handleEvents 以 SSE 推送会话快照。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conversationID, ok := h.conversationFor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	snapshots, err := h.feed.Subscribe(ctx, conversationID)
	if err != nil {
		h.log.LogError(err, "feed subscribe failed", "conversation", conversationID)
		utils.RespondError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				h.log.Warn("sse write failed", "conversation", conversationID, "error", err.Error())
				return
			}
		}
	}
}

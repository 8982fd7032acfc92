package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	conversationHandler "github.com/zhouzirui/convosense/backend/internal/handler/conversation"
	feedHandler "github.com/zhouzirui/convosense/backend/internal/handler/feed"
	languageHandler "github.com/zhouzirui/convosense/backend/internal/handler/language"
	userHandler "github.com/zhouzirui/convosense/backend/internal/handler/user"
	"github.com/zhouzirui/convosense/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/convosense/backend/internal/middleware"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/language"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Languages    *language.Registry
	Identity     userHandler.Identity
	Orchestrator conversationHandler.Orchestrator
	Messages     chat.Store
	Feed         feedHandler.Subscriber
	Tokens       middlewarePkg.TokenParser
	SendLimiter  *middlewarePkg.RateLimiter
	Metrics      *metrics.Metrics
	Checks       map[string]HealthCheck
	CORSOrigins  []string
	Logger       *logger.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.CORSOrigins))

	r.Get("/healthz", healthHandler(d.Checks))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	var limit func(http.Handler) http.Handler
	if d.SendLimiter != nil {
		limit = d.SendLimiter.Middleware
	}

	users := userHandler.New(d.Identity, log)
	conversations := conversationHandler.New(d.Identity, d.Orchestrator, d.Messages, limit, log)
	feed := feedHandler.New(d.Feed, d.Identity, d.CORSOrigins, log)

	r.Route("/api", func(api chi.Router) {
		languageHandler.New(d.Languages).RegisterRoutes(api)
		users.RegisterPublicRoutes(api)

		api.Group(func(pr chi.Router) {
			pr.Use(middlewarePkg.Auth(d.Tokens))
			users.RegisterRoutes(pr)
			conversations.RegisterRoutes(pr)
			feed.RegisterRoutes(pr)
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		utils.RespondJSON(w, status, resp)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/internal/config"
	"github.com/zhouzirui/convosense/backend/internal/handler"
	"github.com/zhouzirui/convosense/backend/internal/metrics"
	"github.com/zhouzirui/convosense/backend/internal/middleware"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/language"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/ai"
	"github.com/zhouzirui/convosense/backend/internal/service/conversation"
	"github.com/zhouzirui/convosense/backend/internal/service/feed"
	"github.com/zhouzirui/convosense/backend/internal/service/identity"
	"github.com/zhouzirui/convosense/backend/internal/service/presence"
	"github.com/zhouzirui/convosense/backend/internal/storage/memory"
	"github.com/zhouzirui/convosense/backend/internal/storage/mongo"
	"github.com/zhouzirui/convosense/backend/internal/storage/redis"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(logger.DefaultConfig())

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded, using system environment", "error", err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		log.LogError(err, "failed to load configuration")
		os.Exit(1)
	}
	log = logger.New(logger.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: os.Stderr})

	if err := run(ctx, cfg, log); err != nil {
		log.LogError(err, "server error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	m := metrics.New()
	checks := map[string]handler.HealthCheck{}

	completer, err := newCompleter(ctx, cfg.AI, log)
	if err != nil {
		return err
	}
	aiSvc := ai.NewService(completer,
		ai.WithTimeout(cfg.AI.Timeout),
		ai.WithMetrics(m),
		ai.WithLogger(log.With("component", "ai")),
	)

	var (
		users    user.Store    = memory.NewUserStore()
		messages chat.Store    = memory.NewMessageStore()
		tracker  presence.Tracker
	)

	if cfg.Storage.MongoEnabled() {
		mc, err := mongo.Connect(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Close(closeCtx)
		}()
		users, messages = mc.Users(), mc.Messages()
		checks["mongo"] = mc.Ping
		log.Info("using MongoDB storage", "database", cfg.Storage.MongoDatabase)
	} else {
		log.Info("MONGO_URI not set, using in-memory storage")
	}

	hub := feed.NewHub(messages, m, log.With("component", "feed"))
	defer hub.Close()

	if cfg.Storage.RedisEnabled() {
		rc, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rc.Close()

		tracker = redis.NewPresenceTracker(rc, cfg.Presence.TTL)
		relay := redis.NewFeedRelay(rc, hub, log.With("component", "relay"))
		hub.SetNotifier(relay)
		go func() {
			if err := relay.Run(ctx, nil); err != nil {
				log.LogError(err, "feed relay stopped")
			}
		}()
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		log.Info("using Redis for presence and feed relay", "addr", cfg.Storage.RedisAddr)
	} else {
		mt := presence.NewMemoryTracker(cfg.Presence.TTL)
		go mt.RunSweeper(ctx, cfg.Presence.TTL)
		tracker = mt
	}

	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	ids := identity.NewService(users, tracker, issuer, language.Default, log.With("component", "identity"))
	orch := conversation.NewOrchestrator(aiSvc, messages, hub,
		conversation.Config{PreviewPolicy: cfg.Chat.PreviewPolicy}, m, log.With("component", "conversation"))

	limiter := middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.Chat.SendRate),
		Burst: cfg.Chat.SendBurst,
	})
	go cleanupLoop(ctx, limiter)

	router := handler.NewRouter(handler.Deps{
		Languages:    language.Default,
		Identity:     ids,
		Orchestrator: orch,
		Messages:     messages,
		Feed:         hub,
		Tokens:       issuer,
		SendLimiter:  limiter,
		Metrics:      m,
		Checks:       checks,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("ConvoSense backend listening", "addr", cfg.Server.Addr, "ai", aiSvc.Online(), "preview_policy", cfg.Chat.PreviewPolicy)
	return runServer(ctx, srv)
}

func newCompleter(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (ai.Completer, error) {
	provider, err := cfg.ResolveProvider()
	if err != nil {
		return nil, err
	}

	switch provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("AI backend: Ark", "model", cfg.Model)
		return ai.NewChainCompleter(ctx, chatModel)
	case config.ProviderOpenAI:
		log.Info("AI backend: OpenAI", "model", cfg.OpenAIModel)
		return ai.NewOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	default:
		log.Warn("no AI credentials configured, sentiment uses keyword heuristics and translation is disabled")
		return nil, nil
	}
}

func cleanupLoop(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup()
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

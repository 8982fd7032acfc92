package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/internal/middleware"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/ai"
	"github.com/zhouzirui/convosense/backend/internal/service/conversation"
	"github.com/zhouzirui/convosense/backend/internal/storage/memory"
)

type stubAnalyzer struct {
	sentimentErr error
}

func (s stubAnalyzer) ClassifySentiment(context.Context, string) (ai.SentimentResult, error) {
	if s.sentimentErr != nil {
		return ai.SentimentResult{}, s.sentimentErr
	}
	return ai.SentimentResult{Sentiment: chat.Positive, Confidence: 0.8}, nil
}

func (stubAnalyzer) Translate(_ context.Context, req ai.TranslateRequest) (chat.TranslationDetail, error) {
	return chat.TranslationDetail{TranslatedText: "[" + req.TargetLanguage + "] " + req.Text, Formality: "neutral", Source: chat.TranslationSource}, nil
}

type fixture struct {
	router *chi.Mux
	users  *memory.UserStore
	alice  string
	bobID  string
}

func setup(t *testing.T, analyzer conversation.Analyzer) fixture {
	t.Helper()
	ctx := context.Background()
	users := memory.NewUserStore()
	for _, u := range []user.User{
		{ID: "alice", Name: "Alice", Language: "en-US"},
		{ID: "bob", Name: "Bob", Language: "es-ES"},
		{ID: "newbie", Name: "Newbie"},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("Create err: %v", err)
		}
	}

	messages := memory.NewMessageStore()
	orch := conversation.NewOrchestrator(analyzer, messages, nil, conversation.Config{}, nil, nil)
	issuer := auth.NewIssuer("secret", time.Hour)
	token, err := issuer.Issue("alice", "Alice")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Auth(issuer))
	New(users, orch, messages, nil, nil).RegisterRoutes(r)
	return fixture{router: r, users: users, alice: token, bobID: "bob"}
}

func (f fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.alice)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestSendMessageTranslatesForPartner(t *testing.T) {
	f := setup(t, stubAnalyzer{})

	resp := f.do(http.MethodPost, "/conversations/bob/messages", map[string]string{"text": "Good morning!"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var res conversation.SendResult
	if err := json.Unmarshal(resp.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got := res.Message.Translations["es-ES"].TranslatedText; got != "[Spanish] Good morning!" {
		t.Fatalf("unexpected translation: %q", got)
	}

	resp = f.do(http.MethodGet, "/conversations/bob/messages", nil)
	var msgs []chat.Message
	_ = json.Unmarshal(resp.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].ConversationID != "alice_bob" {
		t.Fatalf("unexpected log: %+v", msgs)
	}
}

func TestPreviewLifecycle(t *testing.T) {
	f := setup(t, stubAnalyzer{})

	if resp := f.do(http.MethodGet, "/conversations/bob/preview", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before preview, got %d", resp.Code)
	}

	resp := f.do(http.MethodPost, "/conversations/bob/preview", map[string]string{"text": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = f.do(http.MethodGet, "/conversations/bob/status", nil)
	var status statusResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &status)
	if !status.PreviewPending || status.Sending {
		t.Fatalf("unexpected status: %+v", status)
	}

	if resp := f.do(http.MethodPost, "/conversations/bob/preview/confirm", nil); resp.Code != http.StatusCreated {
		t.Fatalf("confirm: expected 201, got %d", resp.Code)
	}
	if resp := f.do(http.MethodPost, "/conversations/bob/preview/confirm", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("second confirm: expected 204, got %d", resp.Code)
	}

	_ = f.do(http.MethodPost, "/conversations/bob/preview", map[string]string{"text": "discard me"})
	if resp := f.do(http.MethodDelete, "/conversations/bob/preview", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("cancel: expected 204, got %d", resp.Code)
	}
	if resp := f.do(http.MethodPost, "/conversations/bob/preview/confirm", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("confirm after cancel: expected 204, got %d", resp.Code)
	}

	resp = f.do(http.MethodGet, "/conversations/bob/messages", nil)
	var msgs []chat.Message
	_ = json.Unmarshal(resp.Body.Bytes(), &msgs)
	if len(msgs) != 1 {
		t.Fatalf("expected one persisted message, got %d", len(msgs))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		analyzer conversation.Analyzer
		path     string
		body     any
		want     int
	}{
		{name: "blank text", analyzer: stubAnalyzer{}, path: "/conversations/bob/messages", body: map[string]string{"text": "   "}, want: http.StatusBadRequest},
		{name: "missing text", analyzer: stubAnalyzer{}, path: "/conversations/bob/messages", body: map[string]string{}, want: http.StatusBadRequest},
		{name: "partner without language", analyzer: stubAnalyzer{}, path: "/conversations/newbie/messages", body: map[string]string{"text": "hi"}, want: http.StatusBadRequest},
		{name: "unknown partner", analyzer: stubAnalyzer{}, path: "/conversations/ghost/messages", body: map[string]string{"text": "hi"}, want: http.StatusNotFound},
		{name: "self", analyzer: stubAnalyzer{}, path: "/conversations/alice/messages", body: map[string]string{"text": "hi"}, want: http.StatusBadRequest},
		{name: "sentiment down", analyzer: stubAnalyzer{sentimentErr: errors.New("503")}, path: "/conversations/bob/messages", body: map[string]string{"text": "hi"}, want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.analyzer)
			resp := f.do(http.MethodPost, tt.path, tt.body)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestConfirmStalePreviewConflicts(t *testing.T) {
	f := setup(t, stubAnalyzer{})

	if resp := f.do(http.MethodPost, "/conversations/bob/preview", map[string]string{"text": "hello"}); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if err := f.users.SetLanguage(context.Background(), "bob", "fr-FR"); err != nil {
		t.Fatalf("SetLanguage err: %v", err)
	}

	resp := f.do(http.MethodPost, "/conversations/bob/preview/confirm", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = f.do(http.MethodGet, "/conversations/bob/messages", nil)
	var msgs []chat.Message
	_ = json.Unmarshal(resp.Body.Bytes(), &msgs)
	if len(msgs) != 0 {
		t.Fatalf("stale preview must not be stored, got %d messages", len(msgs))
	}
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/convosense/backend/internal/model/language"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/presence"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

var (
	ErrNameRequired        = errors.New("display name is required")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, name string) (string, error)
}

// Service handles registration, onboarding and presence.
type Service struct {
	users     user.Store
	presence  presence.Tracker
	tokens    TokenIssuer
	languages *language.Registry
	log       *logger.Logger
	now       func() time.Time
}

// NewService wires the identity service.
func NewService(users user.Store, tracker presence.Tracker, tokens TokenIssuer, languages *language.Registry, log *logger.Logger) *Service {
	if languages == nil {
		languages = language.Default
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		users:     users,
		presence:  tracker,
		tokens:    tokens,
		languages: languages,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a profile, marks it online and issues a session token.
func (s *Service) Register(ctx context.Context, name, lang string) (user.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return user.User{}, "", ErrNameRequired
	}
	lang = strings.TrimSpace(lang)
	if lang != "" && !s.languages.Supported(lang) {
		return user.User{}, "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	u := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		NameKey:   user.NameKey(name),
		Language:  lang,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return user.User{}, "", err
	}

	token, err := s.tokens.Issue(u.ID, u.Name)
	if err != nil {
		if delErr := s.users.Delete(ctx, u.ID); delErr != nil {
			s.log.LogError(delErr, "rollback of unissued profile failed", "user_id", u.ID)
		}
		return user.User{}, "", fmt.Errorf("issue session token: %w", err)
	}

	if err := s.presence.Touch(ctx, u.ID); err != nil {
		s.log.Warn("presence touch failed", "user_id", u.ID, "error", err.Error())
	}

	s.log.Info("user registered", "user_id", u.ID, "language", u.Language)
	return u, token, nil
}

// SetLanguage records the preferred language chosen during onboarding.
func (s *Service) SetLanguage(ctx context.Context, userID, lang string) (user.User, error) {
	lang = strings.TrimSpace(lang)
	if !s.languages.Supported(lang) {
		return user.User{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if err := s.users.SetLanguage(ctx, userID, lang); err != nil {
		return user.User{}, err
	}
	return s.users.Get(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID string) (user.User, error) {
	return s.users.Get(ctx, userID)
}

// Heartbeat keeps userID online for another presence TTL.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return err
	}
	return s.presence.Touch(ctx, userID)
}

// Roster lists online users other than selfID, sorted by name.
func (s *Service) Roster(ctx context.Context, selfID string) ([]user.User, error) {
	online, err := s.presence.Online(ctx)
	if err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}

	all, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]user.User, 0, len(online))
	for _, u := range all {
		if u.ID == selfID {
			continue
		}
		if _, ok := online[u.ID]; ok {
			out = append(out, u)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NameKey < out[j].NameKey
	})
	return out, nil
}

// Logout drops presence and deletes the profile, freeing the display name.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.presence.Remove(ctx, userID); err != nil {
		s.log.Warn("presence remove failed", "user_id", userID, "error", err.Error())
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.log.Info("user logged out", "user_id", userID)
	return nil
}

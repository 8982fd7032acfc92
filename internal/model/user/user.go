package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrDuplicateName = errors.New("display name already taken")
)

// User is a registered chat participant.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	NameKey   string    `json:"-" bson:"nameKey"`
	Language  string    `json:"language" bson:"language"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// HasLanguage reports whether onboarding has set a preferred language.
func (u User) HasLanguage() bool {
	return strings.TrimSpace(u.Language) != ""
}

// NameKey normalizes a display name for uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Store persists user profiles.
type Store interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	SetLanguage(ctx context.Context, id, language string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]User, error)
}

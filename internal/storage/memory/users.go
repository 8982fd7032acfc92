package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/zhouzirui/convosense/backend/internal/model/user"
)

// UserStore keeps profiles in process memory with a unique name index.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]user.User
	byName map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[string]user.User),
		byName: make(map[string]string),
	}
}

func (s *UserStore) Create(_ context.Context, u user.User) error {
	key := user.NameKey(u.Name)
	u.NameKey = key

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[key]; taken {
		return user.ErrDuplicateName
	}
	s.users[u.ID] = u
	s.byName[key] = u.ID
	return nil
}

func (s *UserStore) Get(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *UserStore) SetLanguage(_ context.Context, id, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Language = language
	s.users[id] = u
	return nil
}

func (s *UserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	delete(s.byName, u.NameKey)
	return nil
}

// List returns every profile ordered by creation time.
func (s *UserStore) List(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/xtrntr/poolshare/internal/models"
)

// MemoryUserStore keeps users in process memory. It backs the server when
// no database is configured.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (m *MemoryUserStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return models.ErrUserExists
	}
	user.CreatedAt = time.Now().UTC()
	m.users[user.Username] = *user
	return nil
}

func (m *MemoryUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

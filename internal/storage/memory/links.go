package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avoronel/authd/internal/models"
)

type LinkStore struct {
	mu    sync.RWMutex
	links map[string]models.ExternalLogin
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[string]models.ExternalLogin)}
}

func (m *LinkStore) CreateLink(_ context.Context, link models.ExternalLogin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := link.Provider + ":" + link.SubjectID
	if _, ok := m.links[key]; ok {
		return false, nil
	}
	m.links[key] = link
	return true, nil
}

// Links returns all recorded associations, for assertions.
func (m *LinkStore) Links() []models.ExternalLogin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ExternalLogin, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

// Blacklist is the in-memory TokenBlacklist used by tests.
type Blacklist struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

func NewBlacklist() *Blacklist {
	return &Blacklist{tokens: make(map[string]time.Time)}
}

func (m *Blacklist) InvalidateToken(_ context.Context, token string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[token] = time.Now().Add(expiration)
	return nil
}

func (m *Blacklist) IsTokenInvalidated(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	until, ok := m.tokens[token]
	return ok && time.Now().Before(until), nil
}

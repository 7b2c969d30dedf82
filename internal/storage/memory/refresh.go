package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
)

// RefreshStore is the in-memory RefreshTokenStore used by tests. The mutex
// gives Consume the same at-most-one-winner guarantee the Postgres
// transaction provides.
type RefreshStore struct {
	mu     sync.Mutex
	nextID int64
	byUser map[string]*models.RefreshRecord
}

func NewRefreshStore() *RefreshStore {
	return &RefreshStore{byUser: make(map[string]*models.RefreshRecord)}
}

func (m *RefreshStore) Upsert(_ context.Context, rec models.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byUser[rec.UserID]; ok {
		rec.ID = existing.ID
	} else {
		m.nextID++
		rec.ID = m.nextID
	}
	rec.Used = false
	rec.Revoked = false
	m.byUser[rec.UserID] = &rec

	return nil
}

func (m *RefreshStore) Rotate(_ context.Context, rec models.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byUser[rec.UserID]
	if !ok {
		return storage.ErrNoRecordToRotate
	}
	rec.ID = existing.ID
	rec.Used = false
	rec.Revoked = false
	m.byUser[rec.UserID] = &rec

	return nil
}

func (m *RefreshStore) Consume(_ context.Context, token string, now time.Time) (*models.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.byUser {
		if rec.Token != token {
			continue
		}
		switch {
		case rec.Revoked:
			return nil, storage.ErrRefreshRevoked
		case rec.Used:
			return nil, storage.ErrRefreshUsed
		case !now.Before(rec.ExpiresAt):
			return nil, storage.ErrRefreshExpired
		}
		rec.Used = true
		out := *rec
		return &out, nil
	}

	return nil, storage.ErrRefreshNotFound
}

func (m *RefreshStore) RevokeForPrincipal(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.byUser[userID]; ok {
		rec.Revoked = true
	}
	return nil
}

// Record returns a copy of the principal's current record, for assertions.
func (m *RefreshStore) Record(userID string) (models.RefreshRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[userID]
	if !ok {
		return models.RefreshRecord{}, false
	}
	return *rec, true
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
)

// Storage bundles the repositories and owns the transactional consume path.
type Storage struct {
	db *sql.DB
	*RefreshRepository
	*LinkRepository
}

func NewStorage(db *sql.DB, log *zap.SugaredLogger) *Storage {
	return &Storage{
		db:                db,
		RefreshRepository: NewRefreshRepository(db, log),
		LinkRepository:    NewLinkRepository(db),
	}
}

// Consume performs the single-use exchange: lookup under a row lock, decide,
// mark used, commit. Two concurrent callers presenting the same token
// serialize on FOR UPDATE; the loser observes used=true and fails. A plain
// read-then-write would open a token-replay window here.
func (s *Storage) Consume(ctx context.Context, token string, now time.Time) (*models.RefreshRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	repoTx := NewRefreshRepository(tx, s.RefreshRepository.log)

	rec, err := repoTx.lockByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch {
	case rec.Revoked:
		return nil, storage.ErrRefreshRevoked
	case rec.Used:
		return nil, storage.ErrRefreshUsed
	case !now.Before(rec.ExpiresAt):
		return nil, storage.ErrRefreshExpired
	}

	if err := repoTx.markUsed(ctx, rec.ID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	rec.Used = true
	return rec, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
)

type LinkRepository struct {
	db storage.DBTX
}

func NewLinkRepository(db storage.DBTX) *LinkRepository {
	return &LinkRepository{db: db}
}

// CreateLink is idempotent on (provider, subject). Re-linking the same
// federated subject is a no-op reported as created=false.
func (r *LinkRepository) CreateLink(ctx context.Context, link models.ExternalLogin) (bool, error) {
	query := `INSERT INTO external_logins (provider, subject_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, subject_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, link.Provider, link.SubjectID, link.UserID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to create external login link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link rows affected: %w", err)
	}
	return affected > 0, nil
}

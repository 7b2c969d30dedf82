package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/storage"
)

const refreshColumns = "id, user_id, token, jwt_id, used, revoked, created_at, expires_at"

type RefreshRepository struct {
	db  storage.DBTX
	log *zap.SugaredLogger
}

func NewRefreshRepository(db storage.DBTX, log *zap.SugaredLogger) *RefreshRepository {
	return &RefreshRepository{db: db, log: log}
}

// Upsert relies on the UNIQUE constraint on user_id: one live record per
// principal, replaced in place.
func (r *RefreshRepository) Upsert(ctx context.Context, rec models.RefreshRecord) error {
	query := `INSERT INTO refresh_tokens (user_id, token, jwt_id, used, revoked, created_at, expires_at)
		VALUES ($1, $2, $3, FALSE, FALSE, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			token = EXCLUDED.token,
			jwt_id = EXCLUDED.jwt_id,
			used = FALSE,
			revoked = FALSE,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`
	_, err := r.db.ExecContext(ctx, query, rec.UserID, rec.Token, rec.JWTID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert refresh record: %w", err)
	}
	return nil
}

// Rotate overwrites the existing record only; a principal that never went
// through a record-creating flow cannot rotate.
func (r *RefreshRepository) Rotate(ctx context.Context, rec models.RefreshRecord) error {
	query := `UPDATE refresh_tokens SET
			token = $2,
			jwt_id = $3,
			used = FALSE,
			revoked = FALSE,
			created_at = $4,
			expires_at = $5
		WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, rec.UserID, rec.Token, rec.JWTID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to rotate refresh record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNoRecordToRotate
	}
	return nil
}

func (r *RefreshRepository) RevokeForPrincipal(ctx context.Context, userID string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh record: %w", err)
	}
	return nil
}

// lockByToken holds the row lock until the surrounding transaction ends.
func (r *RefreshRepository) lockByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	var rec models.RefreshRecord
	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token = $1 FOR UPDATE`
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Token,
		&rec.JWTID,
		&rec.Used,
		&rec.Revoked,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRefreshNotFound
		}
		return nil, fmt.Errorf("failed to get refresh record: %w", err)
	}
	return &rec, nil
}

func (r *RefreshRepository) markUsed(ctx context.Context, id int64) error {
	query := `UPDATE refresh_tokens SET used = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark refresh record as used: %w", err)
	}
	return nil
}

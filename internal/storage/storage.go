package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avoronel/authd/internal/models"
)

// Consume failure reasons. Callers must collapse all of them into a generic
// invalid-token signal toward the client; they stay distinguished here so
// reuse can be logged and alerted on.
var (
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshExpired  = errors.New("refresh token expired")
	ErrRefreshUsed     = errors.New("refresh token already used")
	ErrRefreshRevoked  = errors.New("refresh token revoked")

	ErrNoRecordToRotate = errors.New("no refresh record to rotate")
)

// DBTX abstracts *sql.DB and *sql.Tx so repositories run unchanged inside
// transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RefreshTokenStore owns the single refresh record per principal.
type RefreshTokenStore interface {
	// Upsert creates or replaces the principal's record, clearing
	// used/revoked. Register and first federated login use it.
	Upsert(ctx context.Context, rec models.RefreshRecord) error

	// Rotate overwrites an existing record in place and fails with
	// ErrNoRecordToRotate when the principal has none. Local login and
	// refresh use it.
	Rotate(ctx context.Context, rec models.RefreshRecord) error

	// Consume looks the record up by exact token value and atomically marks
	// it used. At most one caller wins when two race on the same value.
	Consume(ctx context.Context, token string, now time.Time) (*models.RefreshRecord, error)

	// RevokeForPrincipal flags the record revoked (explicit logout).
	RevokeForPrincipal(ctx context.Context, userID string) error
}

// LoginLinkStore records federated provider associations.
type LoginLinkStore interface {
	// CreateLink is idempotent; it reports whether a new association was
	// written.
	CreateLink(ctx context.Context, link models.ExternalLogin) (bool, error)
}

// TokenBlacklist invalidates access tokens ahead of their natural expiry.
type TokenBlacklist interface {
	InvalidateToken(ctx context.Context, token string, expiration time.Duration) error
	IsTokenInvalidated(ctx context.Context, token string) (bool, error)
}

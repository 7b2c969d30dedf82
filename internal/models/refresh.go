package models

import "time"

// RefreshRecord is the single persisted refresh-token row per principal.
// Logins and refreshes rotate the same row in place.
type RefreshRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	JWTID     string    `json:"jwt_id"`
	Used      bool      `json:"used"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Consumable reports whether the record may still be exchanged. The stores
// enforce this atomically; it exists for callers that only need the answer.
func (r *RefreshRecord) Consumable(now time.Time) bool {
	return !r.Used && !r.Revoked && now.Before(r.ExpiresAt)
}

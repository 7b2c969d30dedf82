package models

import "time"

// AccessToken is a signed, short-lived credential. JWTID correlates the
// token with the refresh record that was rotated alongside it.
type AccessToken struct {
	Value     string    `json:"value"`
	JWTID     string    `json:"jwt_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken is the opaque value mirrored into the RefreshRecord.
type RefreshToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenPair is ephemeral; it travels to the client as cookies and is never
// persisted as a unit.
type TokenPair struct {
	Access  AccessToken  `json:"access"`
	Refresh RefreshToken `json:"refresh"`
}

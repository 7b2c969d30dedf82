package models

// Echo context keys set by the access-token middleware.
const (
	MwPrincipalIDKey = "principalID"
	MwAccessTokenKey = "accessToken"
)

// Cookie names shared by the controller and the middleware. Both cookies are
// Secure, HttpOnly and SameSite=Strict.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

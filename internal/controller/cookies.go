package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avoronel/authd/internal/models"
)

// Both credentials travel as Secure, HttpOnly, SameSite=Strict cookies with
// independent expiries: the access cookie lives minutes, the refresh cookie
// days.
func setAuthCookies(c echo.Context, pair *models.TokenPair) {
	if pair == nil {
		return
	}
	c.SetCookie(authCookie(models.AccessTokenCookie, pair.Access.Value, pair.Access.ExpiresAt))
	c.SetCookie(authCookie(models.RefreshTokenCookie, pair.Refresh.Value, pair.Refresh.ExpiresAt))
}

// clearAuthCookies expires both credentials so the client cannot retry with
// a known-bad value.
func clearAuthCookies(c echo.Context) {
	expired := time.Unix(0, 0)
	c.SetCookie(authCookie(models.AccessTokenCookie, "", expired))
	c.SetCookie(authCookie(models.RefreshTokenCookie, "", expired))
}

func authCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

package controller

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/service"
	"github.com/avoronel/authd/internal/util"
)

const (
	stateCookieName     = "external_state"
	returnURLCookieName = "external_return"
	stateCookieMaxAge   = 600
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	sessions    *service.SessionService
	provider    identity.ExternalAuthenticator
	frontendURL string
}

func NewController(logger *zap.SugaredLogger, sessions *service.SessionService, provider identity.ExternalAuthenticator, frontendURL string) *Controller {
	return &Controller{
		zapLogger:   logger,
		sessions:    sessions,
		provider:    provider,
		frontendURL: frontendURL,
	}
}

// (POST /api/auth/login).
func (ct *Controller) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return util.NewValidationError(map[string][]string{"general": {"malformed request body"}})
	}

	result, err := ct.sessions.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}

	setAuthCookies(c, result.Pair)
	return c.JSON(http.StatusOK, result.User)
}

// (POST /api/auth/register).
func (ct *Controller) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return util.NewValidationError(map[string][]string{"general": {"malformed request body"}})
	}

	result, err := ct.sessions.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	setAuthCookies(c, result.Pair)
	return c.JSON(http.StatusOK, result.User)
}

// (POST /api/auth/refresh). Reads the refresh cookie, no body. Any failure
// clears both cookies so the client cannot retry a known-bad credential.
func (ct *Controller) Refresh(c echo.Context) error {
	var refreshValue string
	if cookie, err := c.Cookie(models.RefreshTokenCookie); err == nil {
		refreshValue = cookie.Value
	}

	result, err := ct.sessions.Refresh(c.Request().Context(), refreshValue)
	if err != nil {
		clearAuthCookies(c)
		return err
	}

	setAuthCookies(c, result.Pair)
	return c.JSON(http.StatusOK, models.MessageResponse{Message: "Token refreshed successfully."})
}

// (POST /api/auth/logout). Revokes the server-side record when the access
// token is still valid, then clears cookies either way.
func (ct *Controller) Logout(c echo.Context) error {
	var accessToken string
	if cookie, err := c.Cookie(models.AccessTokenCookie); err == nil {
		accessToken = cookie.Value
	}

	if accessToken != "" {
		if err := ct.sessions.Logout(c.Request().Context(), accessToken); err != nil {
			clearAuthCookies(c)
			return err
		}
	}

	clearAuthCookies(c)
	return c.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out successfully."})
}

// (GET /api/auth/session). Requires the access-token middleware.
func (ct *Controller) Session(c echo.Context) error {
	principalID, ok := c.Get(models.MwPrincipalIDKey).(string)
	if !ok || principalID == "" {
		return util.NewUnauthorized("You must be logged in to access this resource")
	}

	info, err := ct.sessions.CurrentUser(c.Request().Context(), principalID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, info)
}

// (GET /api/auth/login/external). Stashes CSRF state and the caller's
// return URL in short-lived cookies, then hands off to the provider.
func (ct *Controller) ExternalLogin(c echo.Context) error {
	state := uuid.NewString()

	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if returnURL := c.QueryParam("returnUrl"); returnURL != "" {
		c.SetCookie(&http.Cookie{
			Name:     returnURLCookieName,
			Value:    url.QueryEscape(returnURL),
			Path:     "/",
			MaxAge:   stateCookieMaxAge,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return c.Redirect(http.StatusFound, ct.provider.AuthCodeURL(state))
}

// (GET /api/auth/login/external/callback). Completes the provider exchange
// and redirects to the frontend with only a success flag and a generic
// error string; no sensitive detail leaves through the redirect.
func (ct *Controller) ExternalCallback(c echo.Context) error {
	returnURL := ct.returnURLFromCookie(c)

	stateCookie, err := c.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != c.QueryParam("state") {
		ct.zapLogger.Warnw("external callback with bad state")
		return c.Redirect(http.StatusFound, ct.frontendRedirect(returnURL, false, "External authentication failed."))
	}

	code := c.QueryParam("code")
	if code == "" {
		return c.Redirect(http.StatusFound, ct.frontendRedirect(returnURL, false, "External authentication failed."))
	}

	assertion, err := ct.provider.Exchange(c.Request().Context(), code)
	if err != nil {
		ct.zapLogger.Warnw("external provider exchange failed", "error", err)
		return c.Redirect(http.StatusFound, ct.frontendRedirect(returnURL, false, "External authentication failed."))
	}

	result, err := ct.sessions.ExternalLogin(c.Request().Context(), assertion)
	if err != nil {
		ct.zapLogger.Warnw("external login flow failed", "error", err)
		return c.Redirect(http.StatusFound, ct.frontendRedirect(returnURL, false, "Authentication error occurred."))
	}

	setAuthCookies(c, result.Pair)
	return c.Redirect(http.StatusFound, ct.frontendRedirect(returnURL, true, ""))
}

func (ct *Controller) returnURLFromCookie(c echo.Context) string {
	cookie, err := c.Cookie(returnURLCookieName)
	if err != nil {
		return ""
	}
	unescaped, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return unescaped
}

func (ct *Controller) frontendRedirect(returnURL string, success bool, errMsg string) string {
	base := ct.frontendURL
	if returnURL != "" {
		base = returnURL
	}
	base = strings.TrimRight(base, "/") + "/auth/external-callback"

	q := url.Values{}
	if success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	if errMsg != "" {
		q.Set("error", errMsg)
	}

	return base + "?" + q.Encode()
}

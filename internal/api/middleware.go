package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/models"
	"github.com/avoronel/authd/internal/service"
	"github.com/avoronel/authd/internal/util"
)

// AccessTokenMiddleware authenticates a request from the access-token
// cookie or a bearer header, and exposes the principal ID and raw token on
// the echo context.
func AccessTokenMiddleware(tokens *service.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := accessTokenFromRequest(c)
			if token == "" {
				return util.NewUnauthorized("You must be logged in to access this resource")
			}

			claims, err := tokens.ValidateAccessToken(c.Request().Context(), token)
			if err != nil {
				return util.NewUnauthorized("Invalid or expired session")
			}

			c.Set(models.MwPrincipalIDKey, claims.Subject)
			c.Set(models.MwAccessTokenKey, token)

			return next(c)
		}
	}
}

func accessTokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(models.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", c.Request().Method,
				"uri", v.URI,
				"status", v.Status,
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}

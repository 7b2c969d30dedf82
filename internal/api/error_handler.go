package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/service"
	"github.com/avoronel/authd/internal/util"
)

// errorBody is the single error envelope. Errors is only present on
// validation failures.
type errorBody struct {
	Reason string              `json:"reason"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// ErrorHandler is the flow boundary: every error a handler returns is
// matched here and converted to a response. Nothing propagates raw.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var respErr util.ResponseError
		if errors.As(err, &respErr) {
			if respErr.Status == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			writeJSON(log, c, respErr.Status, errorBody{Reason: respErr.Msg, Errors: respErr.Fields})
			return
		}

		if isUnauthorizedTokenError(err) {
			writeJSON(log, c, http.StatusUnauthorized, errorBody{Reason: err.Error()})
			return
		}

		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorw("request deadline exceeded", "uri", c.Request().RequestURI)
			writeJSON(log, c, http.StatusInternalServerError, errorBody{Reason: "Storage timeout, please retry"})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			reason := http.StatusText(he.Code)
			if msg, ok := he.Message.(string); ok {
				reason = msg
			}
			writeJSON(log, c, he.Code, errorBody{Reason: reason})
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		writeJSON(log, c, http.StatusInternalServerError, errorBody{Reason: "internal server error"})
	}
}

func writeJSON(log *zap.SugaredLogger, c echo.Context, status int, body errorBody) {
	if err := c.JSON(status, body); err != nil {
		log.Errorw("failed to write json response", "error", err)
	}
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrTokenRevoked)
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/platform/auth"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Detail interface{} `json:"detail"`
}

// StatusOf maps an error onto an HTTP status and a client-safe detail.
func StatusOf(err error) (int, interface{}) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if he.Internal != nil && he.Code >= 500 {
			return he.Code, http.StatusText(he.Code)
		}
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		if he.Message == nil {
			return he.Code, http.StatusText(he.Code)
		}
		return he.Code, he.Message
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "You do not have permission to perform this action."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// HTTPErrorHandler renders errors as {"detail": ...} and logs server errors.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, detail := StatusOf(err)
		if code >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, ErrorBody{Detail: detail})
		}
		if writeErr != nil {
			logger.Error().Err(fmt.Errorf("write error response: %w", writeErr)).Send()
		}
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// errorResponse is the body of every error: {"error": "<message>"}.
type errorResponse struct {
	Error string `json:"error"`
}

// domainErrors maps sentinel errors to a status and the message clients see.
// An empty message means the error text itself, trimmed to the sentinel.
var domainErrors = []struct {
	target error
	code   int
	msg    string
}{
	{domain.ErrInvalidReport, http.StatusBadRequest, ""},
	{domain.ErrVehicleNotFound, http.StatusNotFound, "vehicle not found"},
	{domain.ErrRouteNotFound, http.StatusNotFound, "route not found"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "request timed out"},
}

// NewHTTPErrorHandler renders errors as JSON. Domain errors get their mapped
// status; anything unknown is logged with the request id and hidden behind a
// 500.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err)
		if code == http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	for _, de := range domainErrors {
		if !errors.Is(err, de.target) {
			continue
		}
		if de.msg != "" {
			return de.code, de.msg
		}
		return de.code, fromSentinel(err, de.target)
	}
	return http.StatusInternalServerError, "internal server error"
}

// fromSentinel drops the call-site prefixes in front of target, leaving for
// example "invalid report: lat and lng are required".
func fromSentinel(err, target error) string {
	msg := err.Error()
	if i := strings.Index(msg, target.Error()); i > 0 {
		return msg[i:]
	}
	return msg
}

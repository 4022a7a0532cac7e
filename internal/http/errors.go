package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// StatusFor maps a pipeline failure class to an HTTP status. Provider
// authentication failures are the server's problem, not the caller's, so
// they surface as 502.
func StatusFor(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindInvalidRequest:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case pipeline.KindMalformedRecord:
		return http.StatusUnprocessableEntity
	case pipeline.KindAuthentication:
		return http.StatusBadGateway
	case pipeline.KindRateLimited:
		return http.StatusTooManyRequests
	case pipeline.KindUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.KindCanceled:
		return 499
	}
	return http.StatusInternalServerError
}

// errorHandler renders pipeline errors as ErrorResponse bodies and leaves
// echo's own errors (404 routes, 405) to the default shape.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, map[string]interface{}{"message": he.Message})
			return
		}

		body := pipeline.NewErrorResponse(err)
		status := StatusFor(body.Kind)
		if status >= 500 {
			logger.Error(c.Request().Context(), "request failed",
				zap.String("kind", string(body.Kind)),
				zap.Error(err),
			)
		}
		_ = c.JSON(status, body)
	}
}

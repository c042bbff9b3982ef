package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/models"
)

// statusClientClosedRequest is the non-standard status for a caller that
// went away before the race finished.
const statusClientClosedRequest = 499

// toAcquireError maps a race error to an API error code.
func toAcquireError(err error) *models.AcquireError {
	var ae *models.AcquireError
	if errors.As(err, &ae) {
		return ae
	}

	var f *engine.RaceFailure
	switch {
	case errors.Is(err, engine.ErrExternallyCancelled):
		return models.NewAcquireError(models.ErrCodeCancelled, "request cancelled before any strategy succeeded", err)
	case errors.Is(err, engine.ErrOverallTimeout) && errors.As(err, &f):
		return models.NewAcquireError(models.ErrCodeTimeout, f.Error(), err)
	case errors.Is(err, engine.ErrAllFailed) && errors.As(err, &f):
		return models.NewAcquireError(models.ErrCodeAllFailed, f.Error(), err)
	default:
		return models.NewAcquireError(models.ErrCodeInternal, err.Error(), err)
	}
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.AcquireError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeAllFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeCancelled:
		return statusClientClosedRequest // 499
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}

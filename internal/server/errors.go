package server

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/geocubed/cubehub/internal/auth"
	callbackdomain "github.com/geocubed/cubehub/internal/callback/domain"
	"github.com/geocubed/cubehub/internal/cluster"
	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

// errorResponse is the uniform error envelope of the API. Traceback is only
// populated for unexpected failures, for operator diagnosis.
type errorResponse struct {
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Traceback string `json:"traceback,omitempty"`
}

var ErrUnauthorized = errors.New("unauthorized")

// ErrorHandlingMiddleware maps errors attached to the gin context onto the
// uniform envelope. Nothing is retried here; retries are the caller's job.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(payload.Status, payload)
	}
}

// AbortWithError records err for the error-handling middleware.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) errorResponse {
	var validationErr *estimatordomain.ValidationError
	if errors.As(err, &validationErr) {
		return errorResponse{Message: validationErr.Message, Status: http.StatusBadRequest}
	}

	var quotaErr *cubegendomain.QuotaError
	if errors.As(err, &quotaErr) {
		return errorResponse{Message: quotaErr.Error(), Status: http.StatusPaymentRequired}
	}
	var insufficientErr *ledgerdomain.InsufficientError
	if errors.As(err, &insufficientErr) {
		return errorResponse{Message: insufficientErr.Error(), Status: http.StatusPaymentRequired}
	}

	var clusterErr *cluster.Error
	if errors.As(err, &clusterErr) {
		// Full upstream detail is logged; the caller sees the generic
		// cluster failure with code and reason.
		return errorResponse{Message: clusterErr.Error(), Status: http.StatusBadGateway}
	}

	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return errorResponse{Message: "unauthorized", Status: http.StatusUnauthorized}
	case errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidTotalCount):
		return errorResponse{Message: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, cluster.ErrJobNotFound),
		errors.Is(err, callbackdomain.ErrJobConfigNotFound):
		return errorResponse{Message: err.Error(), Status: http.StatusNotFound}
	case errors.Is(err, cubegendomain.ErrSubmitTimeout):
		return errorResponse{Message: err.Error(), Status: http.StatusGatewayTimeout}
	default:
		return errorResponse{
			Message:   "internal server error",
			Status:    http.StatusInternalServerError,
			Traceback: string(debug.Stack()),
		}
	}
}

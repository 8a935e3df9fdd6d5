package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/authorization"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	pricingdomain "github.com/smallbiznis/genstudio/internal/pricing/domain"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are domain errors caused by the caller's input.
var validationSentinels = []error{
	ErrInvalidRequest,
	generationdomain.ErrInvalidParameters,
	generationdomain.ErrInvalidKind,
	generationdomain.ErrInvalidUser,
	generationdomain.ErrInvalidStatus,
	generationdomain.ErrInvalidPageToken,
	ledgerdomain.ErrInvalidUser,
	ledgerdomain.ErrInvalidType,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidPageToken,
	aimodeldomain.ErrInvalidModelKey,
	aimodeldomain.ErrInvalidKind,
	aimodeldomain.ErrInvalidProvider,
	aimodeldomain.ErrKindMismatch,
	aimodeldomain.ErrInvalidOverride,
	pricingdomain.ErrInvalidParameters,
	pricingdomain.ErrInvalidKind,
	providerdomain.ErrInvalidParameters,
	providerdomain.ErrInvalidPayload,
}

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

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// A dispatch failure may wrap a provider-side validation error; the job
	// already exists and was refunded, so it is reported as upstream.
	if errors.Is(err, generationdomain.ErrDispatchFailed) {
		return http.StatusBadGateway, errorPayload{
			Type:    "dispatch_failed",
			Message: dispatchMessage(err),
		}
	}

	if sentinel := validationSentinel(err); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err, sentinel),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, generationdomain.ErrCallbackUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "not enough credits for this generation",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, aimodeldomain.ErrModelUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "model_unavailable",
			Message: "model is not accepting new generations",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, generationdomain.ErrTooManyActiveJobs):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_active_jobs",
			Message: "too many generations in progress",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog gives the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		return payload.Type, "server"
	}
	if status == http.StatusBadGateway {
		return payload.Type, "upstream"
	}
	return payload.Type, "client"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, generationdomain.ErrNotFound),
		errors.Is(err, aimodeldomain.ErrModelNotFound),
		errors.Is(err, ledgerdomain.ErrUserNotFound),
		errors.Is(err, providerdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, generationdomain.ErrNotFound):
		return "generation not found"
	case errors.Is(err, aimodeldomain.ErrModelNotFound):
		return "model not found"
	case errors.Is(err, ledgerdomain.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, providerdomain.ErrProviderNotFound):
		return "provider not found"
	default:
		return "not found"
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "model_kind_mismatch":
		return "model_key"
	case "invalid_payload":
		return "body"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// validationErrorMessage keeps the detail a service wrapped around the
// sentinel, e.g. "invalid_parameters: prompt is required".
func validationErrorMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if idx := strings.Index(msg, prefix); idx >= 0 {
		return msg[idx+len(prefix):]
	}
	if sentinel == ErrInvalidRequest {
		return "invalid request"
	}
	return "invalid value"
}

func dispatchMessage(err error) string {
	var de *providerdomain.DispatchError
	if errors.As(err, &de) && strings.TrimSpace(de.Message) != "" {
		return "provider rejected the generation: " + de.Message
	}
	return "provider could not accept the generation"
}

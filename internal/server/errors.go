package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/petlog/internal/authorization"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/proration"
	"github.com/smallbiznis/petlog/internal/ratelimit"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/internal/subscription/guard"
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
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

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

// bindError turns a binding failure into field-level validation errors.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    fe.Tag(),
			Message: field + " failed " + fe.Tag(),
		})
	}
	return out
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

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationErrorMessage(err),
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case guard.IsAccessError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "subscription_required",
			Message: accessErrorMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, plandomain.ErrDuplicateName):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "plan name already exists",
		}
	case errors.Is(err, ratelimit.ErrCheckoutRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many payment attempts, try again later",
		}
	case errors.Is(err, paymentdomain.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment gateway is not configured",
		}
	case errors.Is(err, paymentdomain.ErrGatewayFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: paymentdomain.ErrGatewayFailed.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same buckets mapError uses.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal_error", "internal_error"
	}
	return payload.Type, err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, proration.ErrDowngradeNotAllowed),
		errors.Is(err, proration.ErrExtraRoomsRequirePaidPlan),
		errors.Is(err, proration.ErrInvalidMonths),
		errors.Is(err, proration.ErrInvalidRooms),
		errors.Is(err, proration.ErrAmountOverflow),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidOrderCode),
		errors.Is(err, paymentdomain.ErrInvalidTenant),
		errors.Is(err, paymentdomain.ErrInvalidPlan),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidCursor),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, plandomain.ErrInvalidID),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrReservedName),
		errors.Is(err, plandomain.ErrInvalidDisplay),
		errors.Is(err, plandomain.ErrInvalidPrice),
		errors.Is(err, plandomain.ErrInvalidMaxRooms),
		errors.Is(err, subscriptiondomain.ErrInvalidTenant),
		errors.Is(err, subscriptiondomain.ErrInvalidRooms),
		errors.Is(err, subscriptiondomain.ErrInvalidPlanName),
		errors.Is(err, settingdomain.ErrInvalidKey),
		errors.Is(err, settingdomain.ErrInvalidValue):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, plandomain.ErrNotFound):
		return "plan not found"
	case errors.Is(err, subscriptiondomain.ErrNotFound):
		return "subscription not found"
	case errors.Is(err, paymentdomain.ErrNotFound):
		return "payment not found"
	default:
		return "not found"
	}
}

func accessErrorMessage(err error) string {
	switch {
	case errors.Is(err, guard.ErrTrialExpired):
		return "trial has expired, please choose a plan"
	case errors.Is(err, guard.ErrPlanExpired):
		return "plan has expired, please renew"
	case errors.Is(err, guard.ErrSubscriptionInactive):
		return "subscription is inactive"
	default:
		return "no subscription found"
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(err error) string {
	switch {
	case errors.Is(err, proration.ErrDowngradeNotAllowed):
		return "downgrade is not allowed while the current plan is active"
	case errors.Is(err, proration.ErrExtraRoomsRequirePaidPlan):
		return "extra rooms require an active paid plan"
	case errors.Is(err, proration.ErrInvalidMonths):
		return "invalid number of months"
	case errors.Is(err, proration.ErrInvalidRooms):
		return "invalid number of rooms"
	case errors.Is(err, proration.ErrAmountOverflow):
		return "amount is too large"
	default:
		return "invalid value"
	}
}

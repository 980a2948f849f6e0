package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
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

type errorResponse struct {
	Success bool              `json:"success"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, dataResponse{Success: true, Data: data})
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

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return internalError()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   toSnake(fe.Field()),
				Code:    fe.Tag(),
				Message: "invalid value",
			})
		}
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  out,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorResponse{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorResponse{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorResponse{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, cloudsync.ErrRemoteNotConfigured),
		errors.Is(err, cloudsync.ErrSyncAborted):
		return http.StatusServiceUnavailable, errorResponse{
			Type:    "service_unavailable",
			Message: unavailableMessage(err),
		}
	default:
		return internalError()
	}
}

func internalError() (int, errorResponse) {
	return http.StatusInternalServerError, errorResponse{
		Type:    ErrInternal.Error(),
		Message: "internal server error",
	}
}

// classifyErrorForLog returns the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
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
		errors.Is(err, domain.ErrEmptyItems),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrInvalidCashPolicy),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidBackup),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrSupplierNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrPurchaseInvoiceNotFound),
		errors.Is(err, domain.ErrCashTransactionNotFound),
		errors.Is(err, domain.ErrWarehouseNotFound),
		errors.Is(err, domain.ErrRepresentativeNotFound),
		errors.Is(err, domain.ErrPurchaseOrderNotFound),
		errors.Is(err, domain.ErrPendingAdjustmentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, domain.ErrDuplicateCode),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrAdjustmentResolved),
		errors.Is(err, cloudsync.ErrSyncInProgress):
		return true
	default:
		return false
	}
}

// Domain sentinels are snake_case, so their text doubles as the message.
func notFoundMessage(err error) string {
	if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return "not found"
	}
	return sentinelText(err)
}

func conflictMessage(err error) string {
	if errors.Is(err, ErrConflict) {
		return "conflict"
	}
	return sentinelText(err)
}

func unavailableMessage(err error) string {
	switch {
	case errors.Is(err, cloudsync.ErrRemoteNotConfigured):
		return cloudsync.ErrRemoteNotConfigured.Error()
	case errors.Is(err, cloudsync.ErrSyncAborted):
		return err.Error()
	default:
		return "service unavailable"
	}
}

func sentinelText(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return sentinelText(err)
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_items":
		return "at least one item is required"
	default:
		return "invalid value"
	}
}

func toSnake(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"
	ErrorTypeDataAccess   ErrorType = "DATA_ACCESS_ERROR"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeLocationNotFound     ErrorCode = "LOCATION_NOT_FOUND"
	ErrCodeShantytownNotFound   ErrorCode = "SHANTYTOWN_NOT_FOUND"
	ErrCodePlanNotFound         ErrorCode = "PLAN_NOT_FOUND"
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeOrganizationNotFound ErrorCode = "ORGANIZATION_NOT_FOUND"
	ErrCodeAccessNotFound       ErrorCode = "ACCESS_NOT_FOUND"

	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeAccessExpired    ErrorCode = "ACCESS_EXPIRED"
	ErrCodeAccessUsed       ErrorCode = "ACCESS_ALREADY_USED"
	ErrCodeShantytownClosed ErrorCode = "SHANTYTOWN_ALREADY_CLOSED"
	ErrCodePlanClosed       ErrorCode = "PLAN_ALREADY_CLOSED"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"

	ErrCodeDataAccess  ErrorCode = "DATA_ACCESS_FAILED"
	ErrCodeRateLimited ErrorCode = "TOO_MANY_REQUESTS"
)

// dataAccessUserMessage is the only message end users ever see for store failures.
const dataAccessUserMessage = "Une erreur est survenue lors de la lecture ou de l'écriture en base de données"

type AppError struct {
	Type        ErrorType   `json:"type"`
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	UserMessage string      `json:"user_message,omitempty"`
	Details     interface{} `json:"details,omitempty"`
	StatusCode  int         `json:"-"`
	Cause       error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if fields, ok := e.Details.(FieldErrors); ok && len(fields) > 0 {
		return fields.String()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// FieldErrors maps an input field to every message raised against it.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

func (f FieldErrors) HasErrors() bool {
	return len(f) > 0
}

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(f[k], ", ")))
	}
	return strings.Join(parts, "; ")
}

func NewValidationError(fields FieldErrors) *AppError {
	return &AppError{
		Type:        ErrorTypeValidation,
		Code:        ErrCodeValidationFailed,
		Message:     "validation failed",
		UserMessage: "Certaines données sont invalides",
		Details:     fields,
		StatusCode:  http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string) *AppError {
	fields := FieldErrors{}
	fields.Add(field, message)
	return NewValidationError(fields)
}

// NewNotFoundError carries both a developer message and a localized message for end users.
func NewNotFoundError(message, userMessage string, code ErrorCode) *AppError {
	return &AppError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		StatusCode:  http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewPermissionDeniedError(message string) *AppError {
	return &AppError{
		Type:        ErrorTypeForbidden,
		Code:        ErrCodePermissionDenied,
		Message:     message,
		UserMessage: "Vous n'avez pas les droits suffisants pour effectuer cette action",
		StatusCode:  http.StatusForbidden,
	}
}

func NewConflictError(message, userMessage string, code ErrorCode) *AppError {
	return &AppError{
		Type:        ErrorTypeConflict,
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		StatusCode:  http.StatusConflict,
	}
}

func NewRateLimitedError() *AppError {
	return &AppError{
		Type:        ErrorTypeRateLimited,
		Code:        ErrCodeRateLimited,
		Message:     "rate limit reached",
		UserMessage: "Trop de tentatives, veuillez réessayer plus tard",
		StatusCode:  http.StatusTooManyRequests,
	}
}

// NewDataAccessError keeps the driver error as Cause for diagnostics only.
func NewDataAccessError(message string, cause error) *AppError {
	return &AppError{
		Type:        ErrorTypeDataAccess,
		Code:        ErrCodeDataAccess,
		Message:     message,
		UserMessage: dataAccessUserMessage,
		StatusCode:  http.StatusInternalServerError,
		Cause:       cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewUnauthorizedError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is an AppError of type NOT_FOUND.
func IsNotFound(err error) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == ErrorTypeNotFound
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	message := e.Message
	if e.Type == ErrorTypeDataAccess || e.Type == ErrorTypeInternal {
		message = "internal error"
	}
	return json.Marshal(struct {
		Type        ErrorType   `json:"type"`
		Code        ErrorCode   `json:"code"`
		Message     string      `json:"developer_message"`
		UserMessage string      `json:"user_message,omitempty"`
		Details     interface{} `json:"details,omitempty"`
	}{
		Type:        e.Type,
		Code:        e.Code,
		Message:     message,
		UserMessage: e.UserMessage,
		Details:     e.Details,
	})
}

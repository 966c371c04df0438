package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"shop-ingest/internal/core/domain"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Security & Authentication (SEC) ----

func ErrMissingSignature() *AppError {
	return New("SEC_001", "Missing signature", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Ingestion (ING) ----

func ErrTenantNotFound() *AppError {
	return New("ING_001", "Tenant not found", http.StatusNotFound)
}

func ErrJobNotFound() *AppError {
	return New("ING_002", "Job not found", http.StatusNotFound)
}

// Validation returns an ING_003 validation error.
func Validation(message string) *AppError {
	return New("ING_003", message, http.StatusBadRequest)
}

func ErrInvalidResource(resource string) *AppError {
	return New("ING_004", fmt.Sprintf("Invalid resource %q", resource), http.StatusBadRequest)
}

func ErrInvalidPayload(err error) *AppError {
	return Wrap("ING_005", "Invalid webhook payload", http.StatusBadRequest, err)
}

func ErrPayloadTooLarge() *AppError {
	return New("ING_006", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrRemoteFailure(err error) *AppError {
	return Wrap("SYS_002", "Remote platform request failed", http.StatusBadGateway, err)
}

func ErrCredentialFailure(err error) *AppError {
	return Wrap("SYS_003", "Credential decoding failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// FromDomain maps well-known domain errors to AppErrors. Anything else,
// including nil, is returned unchanged.
func FromDomain(err error) error {
	var appErr *AppError
	if err == nil || errors.As(err, &appErr) {
		return err
	}
	var fetchErr *domain.RemoteFetchError
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return Wrap("ING_001", "Tenant not found", http.StatusNotFound, err)
	case errors.Is(err, domain.ErrJobNotFound):
		return Wrap("ING_002", "Job not found", http.StatusNotFound, err)
	case errors.Is(err, domain.ErrUnknownResource):
		return Wrap("ING_004", "Invalid resource", http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrCredentialUnavailable):
		return ErrCredentialFailure(err)
	case errors.As(err, &fetchErr):
		return ErrRemoteFailure(err)
	}
	return err
}

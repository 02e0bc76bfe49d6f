// Package apierrors provides a structured error type for the orchestration
// surface boundary (spec §6/§7): code, message, HTTP status, and an optional
// wrapped cause. The engine's internal pipeline errors (providers.Error,
// persistence failures) are translated into a ServiceError only at this
// boundary; internal packages use their own closed error-kind types.
package apierrors

import (
	"fmt"
	"net/http"
)

// Code is a unique, stable error identifier safe to surface to callers.
type Code string

const (
	CodeInvalidInput         Code = "VAL_3001"
	CodeSymbolNotRegistered  Code = "VAL_3002"
	CodeNotFound             Code = "RES_4001"
	CodeAllSourcesExhausted  Code = "SVC_5001"
	CodeValidationFailed     Code = "SVC_5002"
	CodeComputeFailed        Code = "SVC_5003"
	CodePersistenceFailed    Code = "SVC_5004"
	CodeCancelled            Code = "SVC_5005"
	CodeInternal             Code = "SVC_5999"
)

// ServiceError is a structured error carrying a stable code and HTTP status.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// New creates a ServiceError with no wrapped cause.
func New(code Code, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap creates a ServiceError wrapping an existing error.
func Wrap(code Code, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func InvalidInput(reason string) *ServiceError {
	return New(CodeInvalidInput, reason, http.StatusBadRequest)
}

func SymbolNotRegistered(ticker string) *ServiceError {
	return New(CodeSymbolNotRegistered, fmt.Sprintf("symbol %q is not registered", ticker), http.StatusNotFound)
}

func AllSourcesExhausted(err error) *ServiceError {
	return Wrap(CodeAllSourcesExhausted, "all provider sources exhausted", http.StatusBadGateway, err)
}

func ValidationFailed(err error) *ServiceError {
	return Wrap(CodeValidationFailed, "candle sequence failed validation", http.StatusUnprocessableEntity, err)
}

func ComputeFailed(err error) *ServiceError {
	return Wrap(CodeComputeFailed, "feature computation failed", http.StatusUnprocessableEntity, err)
}

func PersistenceFailed(err error) *ServiceError {
	return Wrap(CodePersistenceFailed, "persistence batch failed", http.StatusInternalServerError, err)
}

func Cancelled() *ServiceError {
	return New(CodeCancelled, "operation cancelled", http.StatusRequestTimeout)
}

func Internal(err error) *ServiceError {
	return Wrap(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

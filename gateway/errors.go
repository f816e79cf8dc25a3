package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"iam-gateway/middleware/auth"
)

// Códigos do campo "error" que não vêm do pacote auth.
const (
	CodeRouteNotFound          = "RouteNotFound"
	CodeMethodNotAllowed       = "MethodNotAllowed"
	CodeRateLimitExceeded      = "RateLimitExceeded"
	CodeCircuitOpen            = "CircuitOpen"
	CodeUpstreamError          = "UpstreamError"
	CodeUnknownServiceFallback = "UnknownServiceFallback"
	CodeInternalError          = "InternalError"
)

// Error é a rejeição de um estágio do pipeline. Vira o envelope JSON
// {success:false, message, error, timestamp, path, status[, data]}.
type Error struct {
	Status  int
	Code    string
	Message string
	// Reason vai em X-Fallback-Reason quando não vazio.
	Reason string
	// RetryAfter em segundos; 0 = sem Retry-After.
	RetryAfter int
	Service    string
	Data       any
	// GatewayError vai em X-Gateway-Error quando não vazio.
	GatewayError string
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Data      any    `json:"data,omitempty"`
}

// WriteError escreve e no formato do envelope.
func WriteError(w http.ResponseWriter, r *http.Request, e *Error, now time.Time) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if e.RetryAfter > 0 {
		h.Set(HeaderRetryAfter, strconv.Itoa(e.RetryAfter))
	}
	if e.Reason != "" {
		h.Set(HeaderFallbackReason, e.Reason)
	}
	if e.GatewayError != "" {
		h.Set(HeaderGatewayError, e.GatewayError)
	}
	w.WriteHeader(e.Status)

	_ = json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Message:   e.Message,
		Error:     e.Code,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Path:      r.URL.Path,
		Status:    e.Status,
		Data:      e.Data,
	})
}

func NotFound(path string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    CodeRouteNotFound,
		Message: "No route matches " + path,
	}
}

func MethodNotAllowed(method, path string) *Error {
	return &Error{
		Status:  http.StatusMethodNotAllowed,
		Code:    CodeMethodNotAllowed,
		Message: "Method " + method + " is not allowed on " + path,
	}
}

// Unauthorized traduz um erro do gate em 401.
func Unauthorized(err error) *Error {
	kind := auth.KindOf(err)
	if kind == "" {
		kind = auth.Other
	}
	return &Error{
		Status:       http.StatusUnauthorized,
		Code:         string(kind),
		Message:      kind.Message(),
		GatewayError: gatewayErrorJWT,
		Err:          err,
	}
}

func RateLimited(service string, retryAfter int) *Error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "Rate limit exceeded",
		Reason:     ReasonRateLimited,
		RetryAfter: retryAfter,
		Service:    service,
	}
}

func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternalError,
		Message: "Internal gateway error",
		Err:     err,
	}
}

// AsError devolve err como *Error; o que não for *Error vira InternalError.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return Internal(err)
}

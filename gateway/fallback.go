package gateway

import (
	"net/http"
)

// FallbackPayload é o campo "data" da resposta de fallback.
type FallbackPayload struct {
	Service             string `json:"service"`
	Status              string `json:"status"`
	FallbackTriggered   bool   `json:"fallback_triggered"`
	RetryAfterSeconds   int    `json:"retry_after_seconds"`
	ServiceURL          string `json:"service_url,omitempty"`
	AlternativeAction   string `json:"alternative_action"`
	Impact              string `json:"impact,omitempty"`
	CachedDataAvailable *bool  `json:"cached_data_available,omitempty"`
}

type fallbackText struct {
	message string
	action  string
	impact  string
	cached  *bool
}

var noCachedData = false

var fallbackTexts = map[string]fallbackText{
	UserService: {
		message: "User service is temporarily unavailable",
		action:  "Please try again later or contact support if the issue persists",
	},
	AuthService: {
		message: "Authentication service is temporarily unavailable",
		action:  "Authentication is temporarily disabled. Cached tokens may still work.",
		impact:  "New logins and token refreshes are unavailable",
	},
	OrganizationService: {
		message: "Organization service is temporarily unavailable",
		action:  "Organization management is temporarily unavailable",
		cached:  &noCachedData,
	},
	ChatService: {
		message: "Chat service is temporarily unavailable",
		action:  "Real-time messaging is temporarily unavailable",
		impact:  "WebSocket connections are disabled",
	},
	AdminService: {
		message: "Administrative service is temporarily unavailable",
		action:  "Administrative functions are temporarily unavailable",
		impact:  "User management and system configuration disabled",
	},
}

var genericFallback = fallbackText{
	message: "Service temporarily unavailable",
	action:  "The requested service is temporarily unavailable",
}

// FallbackResponder monta a resposta 503 que substitui uma chamada bloqueada
// ou falha ao upstream.
type FallbackResponder struct {
	retryAfter int
	upstreams  map[string]string
}

// NewFallbackResponder recebe o Retry-After (segundos) e a URL base de cada
// serviço (para o campo service_url).
func NewFallbackResponder(retryAfterSeconds int, upstreams map[string]string) *FallbackResponder {
	if retryAfterSeconds < 0 {
		retryAfterSeconds = 0
	}
	u := make(map[string]string, len(upstreams))
	for k, v := range upstreams {
		u[k] = v
	}
	return &FallbackResponder{retryAfter: retryAfterSeconds, upstreams: u}
}

func (f *FallbackResponder) RetryAfter() int { return f.retryAfter }

// Known diz se o serviço tem fallback próprio.
func (f *FallbackResponder) Known(service string) bool {
	_, ok := fallbackTexts[service]
	return ok
}

// Respond monta o fallback de service. reason vai em X-Fallback-Reason.
// Serviço desconhecido recebe o payload genérico (UnknownServiceFallback).
func (f *FallbackResponder) Respond(service, reason string) *Error {
	text, known := fallbackTexts[service]
	code := codeForReason(reason)
	if !known {
		text = genericFallback
		service = UnknownService
		code = CodeUnknownServiceFallback
	}
	if reason == "" {
		reason = ReasonServiceUnavailable
	}

	payload := FallbackPayload{
		Service:             service,
		Status:              "UNAVAILABLE",
		FallbackTriggered:   true,
		RetryAfterSeconds:   f.retryAfter,
		ServiceURL:          f.upstreams[service],
		AlternativeAction:   text.action,
		Impact:              text.impact,
		CachedDataAvailable: text.cached,
	}

	return &Error{
		Status:     http.StatusServiceUnavailable,
		Code:       code,
		Message:    text.message,
		Reason:     reason,
		RetryAfter: f.retryAfter,
		Service:    service,
		Data:       payload,
	}
}

func codeForReason(reason string) string {
	if reason == ReasonCircuitOpen {
		return CodeCircuitOpen
	}
	return CodeUpstreamError
}

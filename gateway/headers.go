package gateway

// Headers adicionados pelo gateway.
const (
	HeaderGatewayRequest  = "X-Gateway-Request"
	HeaderServiceRoute    = "X-Service-Route"
	HeaderGatewayResponse = "X-Gateway-Response"
	HeaderGatewayVersion  = "X-Gateway-Version"
	HeaderRequiresAdmin   = "X-Requires-Admin"
	HeaderFallbackReason  = "X-Fallback-Reason"
	HeaderGatewayError    = "X-Gateway-Error"
	HeaderRequestID       = "X-Request-ID"
	// HeaderClientRequestID carrega até o upstream o X-Request-ID enviado pelo cliente.
	HeaderClientRequestID = "X-Client-Request-ID"
	HeaderRetryAfter      = "Retry-After"
)

// Valores de X-Fallback-Reason.
const (
	ReasonCircuitOpen         = "CIRCUIT_BREAKER_OPEN"
	ReasonRateLimited         = "RATE_LIMITED"
	ReasonUpstreamUnreachable = "UPSTREAM_UNREACHABLE"
	ReasonServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

const gatewayErrorJWT = "JWT_AUTHENTICATION_FAILED"

// Nomes dos serviços do IAM.
const (
	UserService         = "user-service"
	AuthService         = "auth-service"
	OrganizationService = "organization-service"
	ChatService         = "chat-service"
	AdminService        = "admin-service"
	UnknownService      = "unknown"
)

package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Headers de identidade enviados ao upstream.
const (
	HeaderUserID        = "X-User-Id"
	HeaderAuthenticated = "X-Authenticated"
	HeaderAuthTime      = "X-Auth-Time"
	HeaderTokenExpires  = "X-Token-Expires"
)

// IdentityHeaders são removidos da requisição de entrada antes do gate,
// para que o cliente não consiga se passar por outro usuário.
var IdentityHeaders = []string{
	HeaderUserID,
	HeaderAuthenticated,
	HeaderAuthTime,
	HeaderTokenExpires,
}

const tokenQueryParam = "token"

// Identity é o contexto de autenticação de uma requisição. Zero value =
// requisição não autenticada (rota pública ou caminho excluído).
type Identity struct {
	Subject         string
	ExpiresAt       time.Time
	AuthenticatedAt time.Time
}

func (id Identity) Authenticated() bool { return id.Subject != "" }

// Apply grava os headers de identidade em h. Só mexe nos próprios headers.
func (id Identity) Apply(h http.Header) {
	if !id.Authenticated() {
		return
	}
	h.Set(HeaderUserID, id.Subject)
	h.Set(HeaderAuthenticated, "true")
	h.Set(HeaderAuthTime, strconv.FormatInt(id.AuthenticatedAt.UnixMilli(), 10))
	if !id.ExpiresAt.IsZero() {
		h.Set(HeaderTokenExpires, id.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

// Gate é o AuthenticationGate: extrai o token, delega a validação ao
// TokenValidator e traduz o resultado em Identity ou *Error.
type Gate struct {
	validator TokenValidator
	logger    *zap.Logger
	now       func() time.Time
}

type GateOption func(*Gate)

func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate falha se o validator não for informado.
func NewGate(v TokenValidator, opts ...GateOption) (*Gate, error) {
	if v == nil {
		return nil, errors.New("auth: token validator is required")
	}
	g := &Gate{validator: v, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate valida a requisição. Com required=false devolve Identity vazia
// sem olhar o token.
func (g *Gate) Authenticate(r *http.Request, required bool) (id Identity, err error) {
	if !required {
		return Identity{}, nil
	}

	token := ExtractToken(r)
	if token == "" {
		return Identity{}, newError(MissingToken, nil)
	}

	defer func() {
		// validator que entra em pânico vira 401 Other, não 500.
		if rec := recover(); rec != nil {
			g.logger.Error("token validator panicked", zap.Any("panic", rec), zap.String("path", r.URL.Path))
			id, err = Identity{}, newError(Other, nil)
		}
	}()

	claims, verr := g.validator.Validate(token)
	if verr != nil {
		kind := KindOf(verr)
		if kind == Other {
			g.logger.Error("unexpected token validation error", zap.String("path", r.URL.Path), zap.Error(verr))
		}
		return Identity{}, newError(kind, verr)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, newError(InvalidPayload, nil)
	}

	return Identity{
		Subject:         subject,
		ExpiresAt:       claims.ExpiresAt,
		AuthenticatedAt: g.now(),
	}, nil
}

// ExtractToken lê o token do Authorization (com ou sem o prefixo "Bearer ",
// sem diferenciar maiúsculas) ou, na falta dele, do parâmetro "token".
func ExtractToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if strings.EqualFold(h, "bearer") {
			return ""
		}
		if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
}

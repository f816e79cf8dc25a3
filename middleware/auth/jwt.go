package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HMACValidator valida JWTs assinados com segredo compartilhado (HS256/384/512).
type HMACValidator struct {
	secret []byte
	parser *jwt.Parser
}

type HMACOption func(*hmacConfig)

type hmacConfig struct {
	methods []string
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

// WithMethods restringe os algoritmos aceitos (padrão: HS256, HS384, HS512).
func WithMethods(methods ...string) HMACOption {
	return func(c *hmacConfig) {
		if len(methods) > 0 {
			c.methods = methods
		}
	}
}

func WithIssuer(iss string) HMACOption { return func(c *hmacConfig) { c.issuer = iss } }

func WithLeeway(d time.Duration) HMACOption { return func(c *hmacConfig) { c.leeway = d } }

func WithValidatorClock(now func() time.Time) HMACOption {
	return func(c *hmacConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func NewHMACValidator(secret []byte, opts ...HMACOption) (*HMACValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	cfg := hmacConfig{
		methods: []string{"HS256", "HS384", "HS512"},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.methods),
		jwt.WithLeeway(cfg.leeway),
		jwt.WithTimeFunc(cfg.now),
	}
	if cfg.issuer != "" {
		popts = append(popts, jwt.WithIssuer(cfg.issuer))
	}

	return &HMACValidator{
		secret: secret,
		parser: jwt.NewParser(popts...),
	}, nil
}

func (v *HMACValidator) Validate(token string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &rc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

// classify converte os erros do jwt/v5 no ErrorKind correspondente.
func classify(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(Expired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(Malformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(BadSignature, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return newError(Invalid, err)
	default:
		return newError(Other, err)
	}
}

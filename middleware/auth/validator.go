package auth

import "time"

// Claims é o que o gate precisa de um token já validado.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenValidator valida assinatura e validade de um token emitido por um
// provedor de identidade externo.
//
// Falhas devem vir como *Error com Kind Expired, Malformed, BadSignature ou
// Invalid; qualquer outro erro é tratado como Other.
type TokenValidator interface {
	Validate(token string) (Claims, error)
}

// ValidatorFunc adapta uma função a TokenValidator.
type ValidatorFunc func(token string) (Claims, error)

func (f ValidatorFunc) Validate(token string) (Claims, error) { return f(token) }

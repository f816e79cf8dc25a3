package auth

import (
	"errors"
	"fmt"
)

// ErrorKind é o tipo de falha de autenticação. O valor é também o código
// devolvido no campo "error" da resposta 401.
type ErrorKind string

const (
	MissingToken   ErrorKind = "MissingToken"
	Expired        ErrorKind = "Expired"
	Malformed      ErrorKind = "Malformed"
	BadSignature   ErrorKind = "BadSignature"
	Invalid        ErrorKind = "Invalid"
	InvalidPayload ErrorKind = "InvalidPayload"
	Other          ErrorKind = "Other"
)

// Message devolve a mensagem legível do tipo de falha.
func (k ErrorKind) Message() string {
	switch k {
	case MissingToken:
		return "Missing or invalid Authorization token"
	case Expired:
		return "JWT token has expired"
	case Malformed:
		return "Malformed JWT token"
	case BadSignature:
		return "Invalid JWT signature"
	case Invalid:
		return "Invalid or expired JWT token"
	case InvalidPayload:
		return "Invalid token payload"
	default:
		return "Authentication failed"
	}
}

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s", e.Kind)
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf devolve o ErrorKind de err. Erros que não são *Error viram Other.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != "" {
		return ae.Kind
	}
	return Other
}

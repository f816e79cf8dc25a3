// Package auth implementa o AuthenticationGate do gateway e um
// TokenValidator HMAC baseado em github.com/golang-jwt/jwt/v5.
package auth

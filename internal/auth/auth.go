// Package auth verifies the bearer credential presented on connection handshake.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/vlink/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Authenticator resolves a bearer credential to a sender identity.
type Authenticator interface {
	Authenticate(token string) (domain.UserID, error)
}

// JWTAuthenticator verifies HMAC-signed tokens whose subject is the user id.
type JWTAuthenticator struct {
	secret []byte
	method string
}

func NewJWTAuthenticator(secret, algorithm string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	switch algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %q", algorithm)
	}
	return &JWTAuthenticator{secret: []byte(secret), method: algorithm}, nil
}

func (a *JWTAuthenticator) Authenticate(token string) (domain.UserID, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{a.method}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u, err := domain.NewUser(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return u.ID, nil
}

// TokenFromRequest extracts the credential from the `token` query parameter,
// falling back to an `Authorization: Bearer` header.
func TokenFromRequest(r *http.Request) (string, error) {
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(tok), nil
}

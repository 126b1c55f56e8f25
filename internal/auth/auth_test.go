package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return tok
}

func TestJWTAuthenticator(t *testing.T) {
	a, err := NewJWTAuthenticator("s3cret", "HS256")
	if err != nil {
		t.Fatalf("NewJWTAuthenticator: %v", err)
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	for _, tc := range []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"valid", sign(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: future}), "u-1", nil},
		{"empty", "", "", ErrMissingToken},
		{"garbage", "not-a-jwt", "", ErrInvalidToken},
		{"wrong secret", sign(t, "other", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: future}), "", ErrInvalidToken},
		{"expired", sign(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: past}), "", ErrInvalidToken},
		{"no expiry", sign(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u-1"}), "", ErrInvalidToken},
		{"no subject", sign(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: future}), "", ErrInvalidToken},
		{"wrong alg", sign(t, "s3cret", jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: future}), "", ErrInvalidToken},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.Authenticate(tc.token)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("user = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewJWTAuthenticatorRejectsConfig(t *testing.T) {
	if _, err := NewJWTAuthenticator("", "HS256"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewJWTAuthenticator("x", "RS256"); err == nil {
		t.Fatal("expected error for RS256")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer header")
	if tok, err := TokenFromRequest(r); err != nil || tok != "abc" {
		t.Fatalf("query token: %q, %v", tok, err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "bearer  xyz ")
	if tok, err := TokenFromRequest(r); err != nil || tok != "xyz" {
		t.Fatalf("header token: %q, %v", tok, err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := TokenFromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("missing: %v", err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if _, err := TokenFromRequest(r); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("basic: %v", err)
	}
}

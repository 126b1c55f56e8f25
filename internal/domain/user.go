// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen    = 64
	MaxSessionIDLen = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the authenticated sender identity resolved at handshake.
type UserID string

type User struct {
	ID UserID `json:"id"`
}

// NewUser validates the identity returned by the auth collaborator.
func NewUser(id string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	return &User{ID: UserID(id)}, nil
}

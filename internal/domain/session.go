package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// SessionID is the opaque classroom/session identifier owned by the collaborator system.
type SessionID string

type SessionStatus string

const (
	SessionUpcoming  SessionStatus = "upcoming"
	SessionLive      SessionStatus = "live"
	SessionCompleted SessionStatus = "completed"
)

var ErrInvalidSessionID = errors.New("invalid session id")

type Session struct {
	ID        SessionID     `json:"id"`
	Status    SessionStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ValidateSessionID rejects identifiers that cannot be used as a path segment.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLen {
		return ErrInvalidSessionID
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return ErrInvalidSessionID
	}
	// ids end up in file names and line-oriented encoder manifests
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return ErrInvalidSessionID
	}
	return nil
}

// Package domain contains core concepts of the session router.
// This file defines Participant entities and related invariants.
package domain

import "time"

// Role carries the authority a participant holds within one session.
type Role string

const (
	RoleHost        Role = "host"
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
	RoleGuest       Role = "guest"
	RoleObserver    Role = "observer"
)

// Rank orders roles by authority. Used by the coordinator to decide
// whether an actor may act on a target.
func (r Role) Rank() int {
	switch r {
	case RoleHost:
		return 4
	case RoleAdmin:
		return 3
	case RoleParticipant:
		return 2
	case RoleGuest:
		return 1
	default:
		return 0
	}
}

// ParseRole maps a wire-level role string; ok is false for unknown values.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleHost, RoleAdmin, RoleParticipant, RoleGuest, RoleObserver:
		return Role(s), true
	}
	return "", false
}

type ParticipantStatus string

const (
	StatusJoining      ParticipantStatus = "joining"
	StatusActive       ParticipantStatus = "active"
	StatusSpeaking     ParticipantStatus = "speaking"
	StatusMuted        ParticipantStatus = "muted"
	StatusDisconnected ParticipantStatus = "disconnected"
)

// Participant is a user's membership record within one session.
// The coordinator is the sole writer; handlers read through snapshots.
type Participant struct {
	SessionID    string
	UserID       string
	DisplayName  string
	Role         Role
	Status       ParticipantStatus
	ConnectionID string // empty while disconnected
	AudioLevel   float64
	SpeakingTime time.Duration
	MessageCount int
	JoinedAt     time.Time
	LastActivity time.Time
}

// Connected reports whether the participant currently holds a live connection.
func (p *Participant) Connected() bool {
	return p.Status != StatusDisconnected && p.ConnectionID != ""
}

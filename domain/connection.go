package domain

import "time"

// ConnectionRecord maps a connection identifier to its (session, user) pair.
// Owned by the connection registry; everything else reads through it.
type ConnectionRecord struct {
	ConnID       string
	SessionID    string
	UserID       string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// AuditEntry is handed to the external persistence collaborator as a side
// effect of coordinator mutations (who muted whom, when a session ended).
type AuditEntry struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actor_id,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

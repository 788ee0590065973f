package domain

import "time"

type SessionState string

const (
	SessionOpen  SessionState = "open"
	SessionEnded SessionState = "ended"
)

// Session is one voice/chat room instance. Created on first join,
// ended when the last participant leaves or on explicit end-session.
type Session struct {
	ID        string
	State     SessionState
	CreatedAt time.Time
}

func NewSession(id string) *Session {
	return &Session{ID: id, State: SessionOpen, CreatedAt: time.Now().UTC()}
}

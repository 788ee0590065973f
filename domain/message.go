// Package domain contains core concepts of the session router.
// This file defines the wire envelope and queued message lifecycle.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"encoding/json"
	"time"
)

// Priority selects one of the four dispatch lanes.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// NumPriorities is the number of dispatch lanes.
const NumPriorities = 4

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// ParsePriority maps a wire-level priority string to a lane.
// An empty or unknown value falls back to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

type MessageStatus string

const (
	StatusPending    MessageStatus = "pending"
	StatusProcessing MessageStatus = "processing"
	StatusDelivered  MessageStatus = "delivered"
	StatusFailed     MessageStatus = "failed"
	StatusRejected   MessageStatus = "rejected"
	StatusExpired    MessageStatus = "expired"
)

// Envelope is the wire-level contract for inbound client events.
// Type-specific fields are optional and validated per type at admission.
type Envelope struct {
	Type      string `json:"type" validate:"required"`
	Priority  string `json:"priority,omitempty"`
	SessionID string `json:"session_id" validate:"required"`

	// chat_message / edit
	Content string `json:"content,omitempty"`

	// file_share
	FileName string `json:"filename,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	// poll_create
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`

	// reaction / edit / delete
	TargetMessageID string `json:"target_message_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	Emoji           string `json:"emoji,omitempty"`

	// participant_action / session_control
	Action       string `json:"action,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	Role         string `json:"role,omitempty"`

	// audio_data
	AudioLevel float64 `json:"audio_level,omitempty"`

	// ai_analysis_*
	AnalysisKind string `json:"analysis_kind,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// DecodeEnvelope parses a raw inbound frame. Size and per-type rules are
// enforced later by the admission validator, not here.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// QueuedMessage is a unit of work owned by exactly one dispatch lane.
// Only the lane consumer (and the retry supervisor it hands off to)
// may mutate Status and RetryCount after admission.
type QueuedMessage struct {
	ID         uint64
	Priority   Priority
	SessionID  string
	UserID     string
	ConnID     string
	Envelope   *Envelope
	EnqueuedAt time.Time
	ExpiresAt  time.Time
	RetryCount int
	MaxRetries int
	Status     MessageStatus
}

// Expired reports whether the message TTL has passed at the given instant.
func (m *QueuedMessage) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

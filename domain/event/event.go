// Package event defines the outbound envelopes fanned out to connections.
package event

import "time"

// Outbound is the wire-level shape of every event sent back to clients.
// Type mirrors the inbound type with a _success/_error suffix, or names
// the broadcast event (participants_list, message, notification, ...).
type Outbound struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	At        time.Time      `json:"at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func New(typ, sessionID string, payload map[string]any) Outbound {
	return Outbound{
		Type:      typ,
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Payload:   payload,
	}
}

// Error builds the typed error event unicast to the originating connection
// when an action is rejected or denied.
func Error(inboundType, sessionID, reason string) Outbound {
	return New(inboundType+"_error", sessionID, map[string]any{"reason": reason})
}

// Success mirrors an inbound type after the action was applied.
func Success(inboundType, sessionID string, payload map[string]any) Outbound {
	return New(inboundType+"_success", sessionID, payload)
}

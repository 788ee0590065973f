// Package handlers implements the type-specific processing behind every
// canonical inbound message. Handlers never mutate participant state
// directly: they call the coordinator's entry points and fan results out
// through the connection registry.
package handlers

import (
	"log/slog"

	"github.com/samber/lo"

	"voicehub/analysis"
	"voicehub/contract"
	"voicehub/domain"
	"voicehub/runtime"
)

// Set bundles the collaborators every handler needs. One Set serves all
// message types; the handlers themselves are methods.
type Set struct {
	log         *slog.Logger
	coordinator contract.ICoordinator
	registry    contract.IRegistry
	engine      *analysis.Engine
}

func NewSet(log *slog.Logger, coordinator contract.ICoordinator, registry contract.IRegistry, engine *analysis.Engine) *Set {
	return &Set{
		log:         log,
		coordinator: coordinator,
		registry:    registry,
		engine:      engine,
	}
}

// RegisterAll wires every canonical type into the table. The router
// validates the result at startup, so forgetting one here fails the boot.
func (s *Set) RegisterAll(table *runtime.HandlerTable) {
	table.Register("join_session", contract.HandlerFunc(s.handleJoin))
	table.Register("leave_session", contract.HandlerFunc(s.handleLeave))
	table.Register("chat_message", contract.HandlerFunc(s.handleChatMessage))
	table.Register("audio_data", contract.HandlerFunc(s.handleAudioData))
	table.Register("participant_action", contract.HandlerFunc(s.handleParticipantAction))
	table.Register("session_control", contract.HandlerFunc(s.handleSessionControl))
	table.Register("ping", contract.HandlerFunc(s.handlePing))
	table.Register("file_share", contract.HandlerFunc(s.handleFileShare))
	table.Register("poll_create", contract.HandlerFunc(s.handlePollCreate))
	table.Register("reaction", contract.HandlerFunc(s.handleReaction))
	table.Register("edit_message", contract.HandlerFunc(s.handleEditMessage))
	table.Register("delete_message", contract.HandlerFunc(s.handleDeleteMessage))
	table.Register("ai_analysis_subscribe", contract.HandlerFunc(s.handleAnalysisSubscribe))
	table.Register("ai_analysis_unsubscribe", contract.HandlerFunc(s.handleAnalysisUnsubscribe))
	table.Register("ai_analysis_request", contract.HandlerFunc(s.handleAnalysisRequest))
	table.Register("ai_analysis_progress_request", contract.HandlerFunc(s.handleAnalysisProgress))
	table.Register("ai_analysis_cancel", contract.HandlerFunc(s.handleAnalysisCancel))
}

// participantsPayload is the participants_list body shared by several
// broadcasts.
func participantsPayload(participants []domain.Participant) []map[string]any {
	return lo.Map(participants, func(p domain.Participant, _ int) map[string]any {
		return map[string]any{
			"user_id":      p.UserID,
			"display_name": p.DisplayName,
			"role":         string(p.Role),
			"status":       string(p.Status),
			"joined_at":    p.JoinedAt,
		}
	})
}

package handlers

import (
	"context"
	"fmt"

	"voicehub/domain"
	"voicehub/domain/event"
	"voicehub/errors"
)

func (s *Set) handleJoin(ctx context.Context, msg *domain.QueuedMessage) error {
	requested, _ := domain.ParseRole(msg.Envelope.Role)

	p, err := s.coordinator.Join(ctx, msg.SessionID, msg.UserID, msg.ConnID, requested)
	if err != nil {
		return err
	}

	participants := s.coordinator.Participants(msg.SessionID)
	if err := s.registry.Unicast(ctx, msg.ConnID, event.Success("join_session", msg.SessionID, map[string]any{
		"user_id":      p.UserID,
		"display_name": p.DisplayName,
		"role":         string(p.Role),
		"participants": participantsPayload(participants),
	})); err != nil {
		return err
	}

	s.broadcastRoster(ctx, msg.SessionID, participants)
	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
		"kind":         "participant_joined",
		"user_id":      p.UserID,
		"display_name": p.DisplayName,
	}))
	return nil
}

func (s *Set) handleLeave(ctx context.Context, msg *domain.QueuedMessage) error {
	p, err := s.coordinator.Get(msg.SessionID, msg.UserID)
	if err != nil {
		return err
	}
	if err := s.coordinator.Leave(ctx, msg.SessionID, msg.UserID); err != nil {
		return err
	}

	if err := s.registry.Unicast(ctx, msg.ConnID, event.Success("leave_session", msg.SessionID, nil)); err != nil {
		s.log.Debug("Leaver already gone", "conn", msg.ConnID)
	}

	s.broadcastRoster(ctx, msg.SessionID, s.coordinator.Participants(msg.SessionID))
	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
		"kind":         "participant_left",
		"user_id":      p.UserID,
		"display_name": p.DisplayName,
	}))
	return nil
}

func (s *Set) handleAudioData(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "send_audio") {
		return fmt.Errorf("%w: %s may not send audio in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}

	before, err := s.coordinator.Get(msg.SessionID, msg.UserID)
	if err != nil {
		return err
	}
	if err := s.coordinator.UpdateAudioLevel(msg.SessionID, msg.UserID, msg.Envelope.AudioLevel); err != nil {
		return err
	}
	after, err := s.coordinator.Get(msg.SessionID, msg.UserID)
	if err != nil {
		return err
	}

	// Speaking transitions are the only audio event worth a broadcast;
	// raw level updates would flood every connection.
	if before.Status != after.Status {
		s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
			"kind":    "speaking_state",
			"user_id": after.UserID,
			"status":  string(after.Status),
		}))
	}
	return nil
}

func (s *Set) handleParticipantAction(ctx context.Context, msg *domain.QueuedMessage) error {
	env := msg.Envelope

	switch env.Action {
	case "mute", "unmute":
		if err := s.coordinator.SetMuted(ctx, msg.SessionID, env.TargetUserID, env.Action == "mute", msg.UserID); err != nil {
			return err
		}
	case "role_change":
		role, ok := domain.ParseRole(env.Role)
		if !ok {
			return fmt.Errorf("%w: unknown role %q", errors.ErrNotFound, env.Role)
		}
		if err := s.coordinator.ChangeRole(ctx, msg.SessionID, env.TargetUserID, role, msg.UserID); err != nil {
			return err
		}
	case "remove":
		if msg.UserID != env.TargetUserID && !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "remove_participant") {
			return fmt.Errorf("%w: %s may not remove participants from %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
		}
		if err := s.coordinator.Leave(ctx, msg.SessionID, env.TargetUserID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: participant action %q", errors.ErrNotFound, env.Action)
	}

	if err := s.registry.Unicast(ctx, msg.ConnID, event.Success("participant_action", msg.SessionID, map[string]any{
		"action":         env.Action,
		"target_user_id": env.TargetUserID,
	})); err != nil {
		s.log.Debug("Actor unreachable after participant action", "conn", msg.ConnID)
	}

	s.broadcastRoster(ctx, msg.SessionID, s.coordinator.Participants(msg.SessionID))
	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
		"kind":           "participant_action",
		"action":         env.Action,
		"actor_id":       msg.UserID,
		"target_user_id": env.TargetUserID,
	}))
	return nil
}

func (s *Set) handleSessionControl(ctx context.Context, msg *domain.QueuedMessage) error {
	env := msg.Envelope

	switch env.Action {
	case "end":
		// The session-ended notification must go out before EndSession
		// empties the roster indexes, so check authority up front.
		if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "manage_session") {
			return fmt.Errorf("%w: %s may not end session %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
		}
		s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
			"kind":     "session_ended",
			"actor_id": msg.UserID,
		}))
		if err := s.coordinator.EndSession(ctx, msg.SessionID, msg.UserID); err != nil {
			return err
		}
	case "announcement":
		if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "manage_session") {
			return fmt.Errorf("%w: %s may not announce in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
		}
		s.registry.BroadcastSession(ctx, msg.SessionID, event.New("announcement", msg.SessionID, map[string]any{
			"actor_id": msg.UserID,
			"content":  env.Content,
		}))
	default:
		return fmt.Errorf("%w: session control action %q", errors.ErrNotFound, env.Action)
	}

	if err := s.registry.Unicast(ctx, msg.ConnID, event.Success("session_control", msg.SessionID, map[string]any{
		"action": env.Action,
	})); err != nil {
		s.log.Debug("Actor unreachable after session control", "conn", msg.ConnID)
	}
	return nil
}

func (s *Set) broadcastRoster(ctx context.Context, sessionID string, participants []domain.Participant) {
	s.registry.BroadcastSession(ctx, sessionID, event.New("participants_list", sessionID, map[string]any{
		"participants": participantsPayload(participants),
	}))
}

package handlers

import (
	"context"
	"fmt"
	"strconv"

	"voicehub/admission"
	"voicehub/domain"
	"voicehub/domain/event"
	"voicehub/errors"
)

func (s *Set) handleChatMessage(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "send_message") {
		return fmt.Errorf("%w: %s may not post in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, true)

	sender, err := s.coordinator.Get(msg.SessionID, msg.UserID)
	if err != nil {
		return err
	}

	// Content was already sanitized (HTML allowlist, word censor) at
	// admission, so it is broadcast as-is.
	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("message", msg.SessionID, map[string]any{
		"message_id":   strconv.FormatUint(msg.ID, 10),
		"user_id":      sender.UserID,
		"display_name": sender.DisplayName,
		"content":      msg.Envelope.Content,
		"priority":     msg.Priority.String(),
	}))
	return nil
}

func (s *Set) handleFileShare(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "share_file") {
		return fmt.Errorf("%w: %s may not share files in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, false)

	category, _ := admission.FileCategory(msg.Envelope.FileName)
	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("notification", msg.SessionID, map[string]any{
		"kind":      "file_shared",
		"user_id":   msg.UserID,
		"filename":  msg.Envelope.FileName,
		"file_size": msg.Envelope.FileSize,
		"category":  category,
	}))
	return nil
}

func (s *Set) handlePollCreate(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "create_poll") {
		return fmt.Errorf("%w: %s may not create polls in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, false)

	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("poll", msg.SessionID, map[string]any{
		"poll_id":  strconv.FormatUint(msg.ID, 10),
		"user_id":  msg.UserID,
		"question": msg.Envelope.Question,
		"options":  msg.Envelope.Options,
	}))
	return nil
}

func (s *Set) handleReaction(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "react") {
		return fmt.Errorf("%w: %s may not react in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, false)

	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("message_reaction", msg.SessionID, map[string]any{
		"user_id":           msg.UserID,
		"target_message_id": msg.Envelope.TargetMessageID,
		"emoji":             msg.Envelope.Emoji,
	}))
	return nil
}

func (s *Set) handleEditMessage(ctx context.Context, msg *domain.QueuedMessage) error {
	if !s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "send_message") {
		return fmt.Errorf("%w: %s may not edit messages in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, false)

	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("message_edited", msg.SessionID, map[string]any{
		"user_id":    msg.UserID,
		"message_id": msg.Envelope.MessageID,
		"content":    msg.Envelope.Content,
	}))
	return nil
}

func (s *Set) handleDeleteMessage(ctx context.Context, msg *domain.QueuedMessage) error {
	// Deleting someone else's message takes moderation authority; clients
	// delete their own freely. Ownership of message IDs is not tracked
	// server-side, so the moderation check gates the broadcast only when
	// the actor claims another user's message.
	if msg.Envelope.TargetUserID != "" && msg.Envelope.TargetUserID != msg.UserID &&
		!s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "remove_participant") {
		return fmt.Errorf("%w: %s may not delete others' messages in %s", errors.ErrPermissionDenied, msg.UserID, msg.SessionID)
	}
	s.coordinator.Touch(msg.SessionID, msg.UserID, false)

	s.registry.BroadcastSession(ctx, msg.SessionID, event.New("message_deleted", msg.SessionID, map[string]any{
		"user_id":    msg.UserID,
		"message_id": msg.Envelope.MessageID,
	}))
	return nil
}

func (s *Set) handlePing(ctx context.Context, msg *domain.QueuedMessage) error {
	return s.registry.Unicast(ctx, msg.ConnID, event.New("pong", msg.SessionID, nil))
}

package handlers

import (
	"context"

	"voicehub/domain"
	"voicehub/domain/event"
)

func (s *Set) handleAnalysisSubscribe(ctx context.Context, msg *domain.QueuedMessage) error {
	s.engine.Subscribe(msg.SessionID, msg.ConnID)
	return s.registry.Unicast(ctx, msg.ConnID, event.Success("ai_analysis_subscribe", msg.SessionID, nil))
}

func (s *Set) handleAnalysisUnsubscribe(ctx context.Context, msg *domain.QueuedMessage) error {
	s.engine.Unsubscribe(msg.SessionID, msg.ConnID)
	return s.registry.Unicast(ctx, msg.ConnID, event.Success("ai_analysis_unsubscribe", msg.SessionID, nil))
}

func (s *Set) handleAnalysisRequest(ctx context.Context, msg *domain.QueuedMessage) error {
	req := s.engine.Request(msg.SessionID, msg.UserID, msg.Envelope.AnalysisKind, msg.Envelope.Content)
	s.log.Info("Analysis started", "request", req.ID, "kind", req.Kind, "session", msg.SessionID)

	return s.registry.Unicast(ctx, msg.ConnID, event.Success("ai_analysis_request", msg.SessionID, map[string]any{
		"request_id": req.ID,
		"kind":       req.Kind,
		"status":     string(req.Status),
	}))
}

func (s *Set) handleAnalysisProgress(ctx context.Context, msg *domain.QueuedMessage) error {
	req, err := s.engine.Progress(msg.Envelope.RequestID)
	if err != nil {
		return err
	}

	return s.registry.Unicast(ctx, msg.ConnID, event.Success("ai_analysis_progress_request", msg.SessionID, map[string]any{
		"request_id": req.ID,
		"kind":       req.Kind,
		"progress":   req.Progress,
		"status":     string(req.Status),
		"result":     req.Result,
	}))
}

func (s *Set) handleAnalysisCancel(ctx context.Context, msg *domain.QueuedMessage) error {
	isAdmin := s.coordinator.CheckPermission(msg.SessionID, msg.UserID, "manage_session")
	if err := s.engine.Cancel(msg.Envelope.RequestID, msg.UserID, isAdmin); err != nil {
		return err
	}
	return s.registry.Unicast(ctx, msg.ConnID, event.Success("ai_analysis_cancel", msg.SessionID, map[string]any{
		"request_id": msg.Envelope.RequestID,
	}))
}

// Package analysis runs long-lived session analyses (language, sentiment,
// toxicity heuristics) and streams progress events to subscribed
// connections. Requests outlive the message that started them.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicehub/contract"
	"voicehub/domain/event"
	"voicehub/errors"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Request is one analysis run. Progress moves 0 -> 50 -> 100.
type Request struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	Progress  int            `json:"progress"`
	Status    Status         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

var _ contract.Worker = (*Engine)(nil)

// Engine coordinates analysis tasks and their subscribers. It runs as a
// supervised worker: Run pins the task context and reaps finished
// requests so the map never grows unbounded.
type Engine struct {
	mu          sync.RWMutex
	log         *slog.Logger
	registry    contract.IRegistry
	stepDelay   time.Duration
	retention   time.Duration
	taskCtx     context.Context
	requests    map[string]*Request
	cancels     map[string]context.CancelFunc
	finishedAt  map[string]time.Time
	subscribers map[string]map[string]struct{} // session -> connIDs
}

func NewEngine(log *slog.Logger, registry contract.IRegistry, stepDelay time.Duration) *Engine {
	if stepDelay <= 0 {
		stepDelay = 500 * time.Millisecond
	}
	return &Engine{
		log:         log,
		registry:    registry,
		stepDelay:   stepDelay,
		retention:   5 * time.Minute,
		taskCtx:     context.Background(),
		requests:    make(map[string]*Request),
		cancels:     make(map[string]context.CancelFunc),
		finishedAt:  make(map[string]time.Time),
		subscribers: make(map[string]map[string]struct{}),
	}
}

// Run keeps the engine alive under the supervisor and reaps finished
// requests past their retention window.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.taskCtx = ctx
	e.mu.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Debug("Stopping analysis engine")
			return ctx.Err()
		case <-ticker.C:
			e.reap()
		}
	}
}

func (e *Engine) Subscribe(sessionID, connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscribers[sessionID]; !ok {
		e.subscribers[sessionID] = make(map[string]struct{})
	}
	e.subscribers[sessionID][connID] = struct{}{}
}

func (e *Engine) Unsubscribe(sessionID, connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if set, ok := e.subscribers[sessionID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(e.subscribers, sessionID)
		}
	}
}

// Request starts a new analysis task and returns its handle immediately;
// results arrive asynchronously on the subscribed connections.
func (e *Engine) Request(sessionID, userID, kind, sample string) Request {
	req := &Request{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	taskCtx, cancel := context.WithCancel(e.taskCtx)
	e.requests[req.ID] = req
	e.cancels[req.ID] = cancel
	e.mu.Unlock()

	go e.work(taskCtx, req.ID, kind, sample)
	return *req
}

// Progress returns the current snapshot of one request.
func (e *Engine) Progress(requestID string) (Request, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	req, ok := e.requests[requestID]
	if !ok {
		return Request{}, fmt.Errorf("%w: analysis request %s", errors.ErrNotFound, requestID)
	}
	return *req, nil
}

// Cancel stops a running request. Only the requester, or an actor with
// admin authority, may cancel.
func (e *Engine) Cancel(requestID, actingUserID string, actingIsAdmin bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: analysis request %s", errors.ErrNotFound, requestID)
	}
	if req.UserID != actingUserID && !actingIsAdmin {
		return fmt.Errorf("%w: %s may not cancel request %s", errors.ErrPermissionDenied, actingUserID, requestID)
	}
	if req.Status != StatusRunning {
		return nil
	}

	if cancel, ok := e.cancels[requestID]; ok {
		cancel()
	}
	req.Status = StatusCancelled
	e.finishedAt[requestID] = time.Now()
	return nil
}

// work walks the request through its progress steps and publishes the
// result. Each step sleeps stepDelay so the task yields between phases.
func (e *Engine) work(ctx context.Context, requestID, kind, sample string) {
	for _, progress := range []int{0, 50} {
		if !e.step(ctx, requestID, progress) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.stepDelay):
		}
	}

	result := analyzeText(kind, sample)

	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok || req.Status != StatusRunning {
		e.mu.Unlock()
		return
	}
	req.Progress = 100
	req.Status = StatusCompleted
	req.Result = result
	snapshot := *req
	e.finishedAt[requestID] = time.Now()
	e.mu.Unlock()

	e.publish(ctx, snapshot.SessionID, event.New("ai_analysis_complete", snapshot.SessionID, map[string]any{
		"request_id": snapshot.ID,
		"kind":       snapshot.Kind,
		"result":     snapshot.Result,
	}))
}

// step advances progress and notifies subscribers; false means the
// request is gone or no longer running.
func (e *Engine) step(ctx context.Context, requestID string, progress int) bool {
	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok || req.Status != StatusRunning {
		e.mu.Unlock()
		return false
	}
	req.Progress = progress
	snapshot := *req
	e.mu.Unlock()

	e.publish(ctx, snapshot.SessionID, event.New("ai_analysis_progress", snapshot.SessionID, map[string]any{
		"request_id": snapshot.ID,
		"kind":       snapshot.Kind,
		"progress":   snapshot.Progress,
	}))
	return true
}

// publish unicasts an event to every subscriber of the session.
func (e *Engine) publish(ctx context.Context, sessionID string, evt event.Outbound) {
	e.mu.RLock()
	set := e.subscribers[sessionID]
	connIDs := make([]string, 0, len(set))
	for connID := range set {
		connIDs = append(connIDs, connID)
	}
	e.mu.RUnlock()

	for _, connID := range connIDs {
		if err := e.registry.Unicast(ctx, connID, evt); err != nil {
			e.log.Debug("Subscriber unreachable, dropping analysis event", "conn", connID)
		}
	}
}

func (e *Engine) reap() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-e.retention)
	for id, at := range e.finishedAt {
		if at.Before(cutoff) {
			delete(e.requests, id)
			delete(e.cancels, id)
			delete(e.finishedAt, id)
		}
	}
}

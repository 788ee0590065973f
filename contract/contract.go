//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"voicehub/domain"
	"voicehub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one client's outbound channel (in practice a websocket
// write pump). Consume must not block past the sink's own send buffer.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRegistry is the connection registry contract: connID -> (session, user).
// The registry is the sole writer of connection records.
type IRegistry interface {
	Register(connID, sessionID, userID string, sink EventSink)
	Unregister(connID string)
	Lookup(connID string) (domain.ConnectionRecord, bool)
	HasUser(userID string) bool
	Touch(connID string)
	Unicast(ctx context.Context, connID string, e event.Outbound) error
	BroadcastSession(ctx context.Context, sessionID string, e event.Outbound)
	BroadcastUser(ctx context.Context, userID string, e event.Outbound)
	CleanupInactive(maxIdle time.Duration) int
}

// Handler processes one dequeued message. A returned error wrapping
// errors.ErrPermissionDenied, errors.ErrNotFound, or errors.ErrSessionEnded
// is surfaced to the origin connection and never retried; any other error
// is transient and goes through the retry supervisor.
type Handler interface {
	Handle(ctx context.Context, msg *domain.QueuedMessage) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *domain.QueuedMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg *domain.QueuedMessage) error {
	return f(ctx, msg)
}

// ICoordinator is the participant state machine. Handlers never mutate
// Participant fields directly; every mutation goes through these entry points.
type ICoordinator interface {
	Join(ctx context.Context, sessionID, userID, connID string, requested domain.Role) (domain.Participant, error)
	Leave(ctx context.Context, sessionID, userID string) error
	Disconnect(ctx context.Context, sessionID, userID string) error
	SetMuted(ctx context.Context, sessionID, targetUserID string, muted bool, actingUserID string) error
	ChangeRole(ctx context.Context, sessionID, targetUserID string, newRole domain.Role, actingUserID string) error
	UpdateAudioLevel(sessionID, userID string, level float64) error
	Touch(sessionID, userID string, countMessage bool)
	CheckPermission(sessionID, userID, action string) bool
	Participants(sessionID string) []domain.Participant
	Get(sessionID, userID string) (domain.Participant, error)
	EndSession(ctx context.Context, sessionID, actingUserID string) error
}

// Directory resolves identities against the external user directory.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// AuditTrail is the external persistence collaborator for durable audit
// records. The core owns no durable state of its own.
type AuditTrail interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

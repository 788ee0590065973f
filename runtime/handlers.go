package runtime

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voicehub/contract"
	"voicehub/errors"
)

// CanonicalTypes is every inbound type the router must be able to serve.
// The table is validated against it at startup so a missing handler is a
// boot failure, never a runtime surprise. The ai_analysis_* types sit in
// the same table as everything else: they used to be special-cased in a
// fast-path branch, but nothing measured justified it.
var CanonicalTypes = []string{
	"join_session",
	"leave_session",
	"chat_message",
	"audio_data",
	"participant_action",
	"session_control",
	"ping",
	"file_share",
	"poll_create",
	"reaction",
	"edit_message",
	"delete_message",
	"ai_analysis_subscribe",
	"ai_analysis_unsubscribe",
	"ai_analysis_request",
	"ai_analysis_progress_request",
	"ai_analysis_cancel",
}

// HandlerTable maps a message type to its handler. Registration happens
// during wiring; lookups are lock-cheap on the dispatch path.
type HandlerTable struct {
	mu       sync.RWMutex
	log      *slog.Logger
	handlers map[string]contract.Handler
}

func NewHandlerTable(log *slog.Logger) *HandlerTable {
	return &HandlerTable{
		log:      log,
		handlers: make(map[string]contract.Handler),
	}
}

func (t *HandlerTable) Register(msgType string, h contract.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handlers[msgType]; ok {
		t.log.Warn("Handler replaced", "type", msgType)
	}
	t.handlers[msgType] = h
}

func (t *HandlerTable) Resolve(msgType string) (contract.Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.handlers[msgType]
	return h, ok
}

func (t *HandlerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// ValidateStartup returns an error naming every required type without a
// handler. Called once before the lanes start consuming.
func (t *HandlerTable) ValidateStartup(required []string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var missing []string
	for _, msgType := range required {
		if _, ok := t.handlers[msgType]; !ok {
			missing = append(missing, msgType)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrNoHandler, strings.Join(missing, ", "))
	}
	return nil
}

package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"voicehub/contract"
	"voicehub/domain"
	"voicehub/domain/event"
	"voicehub/errors"
	"voicehub/observability"
)

// HandlerResolver is the slice of the handler table a lane needs.
type HandlerResolver interface {
	Resolve(msgType string) (contract.Handler, bool)
}

// Ensure *LaneWorker implements the contract.Worker interface at compile
// time, so a signature drift surfaces here and not in the wiring.
var _ contract.Worker = (*LaneWorker)(nil)

// LaneWorker is the single consumer of one priority lane. Messages in a
// lane are processed in enqueue order; a failed message re-enters its own
// lane behind newer arrivals via the retry supervisor. The idle tick only
// refreshes the queue-depth gauge — a blocked receive wakes immediately
// when work arrives, so urgent traffic is serviced as fast as Go's
// scheduler allows regardless of the tick.
type LaneWorker struct {
	log      *slog.Logger
	priority domain.Priority
	lane     chan *domain.QueuedMessage
	idleTick time.Duration
	resolver HandlerResolver
	registry contract.IRegistry
	stats    *observability.StatsManager
	retries  chan<- *domain.QueuedMessage
}

func NewLaneWorker(
	log *slog.Logger,
	priority domain.Priority,
	lane chan *domain.QueuedMessage,
	idleTick time.Duration,
	resolver HandlerResolver,
	registry contract.IRegistry,
	stats *observability.StatsManager,
	retries chan<- *domain.QueuedMessage,
) *LaneWorker {
	return &LaneWorker{
		log:      log.With("lane", priority.String()),
		priority: priority,
		lane:     lane,
		idleTick: idleTick,
		resolver: resolver,
		registry: registry,
		stats:    stats,
		retries:  retries,
	}
}

func (w *LaneWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping lane worker")
			return ctx.Err()
		case msg, ok := <-w.lane:
			if !ok {
				w.log.Debug("Lane channel closed")
				return nil
			}
			w.process(ctx, msg)
			w.stats.SetQueueDepth(w.priority, len(w.lane))
		case <-ticker.C:
			w.stats.SetQueueDepth(w.priority, len(w.lane))
		}
	}
}

// process runs exactly one delivery attempt. Status transitions here are
// the only writes to the message after admission.
func (w *LaneWorker) process(ctx context.Context, msg *domain.QueuedMessage) {
	if msg.Expired(time.Now()) {
		msg.Status = domain.StatusExpired
		w.stats.IncrExpired()
		w.log.Debug("Message expired before processing", "id", msg.ID, "type", msg.Envelope.Type)
		return
	}

	msg.Status = domain.StatusProcessing
	w.stats.IncrProcessed()

	handler, ok := w.resolver.Resolve(msg.Envelope.Type)
	if !ok {
		// A missing handler is a configuration error, not a transient
		// fault: retrying cannot help.
		msg.Status = domain.StatusFailed
		w.stats.IncrFailed()
		w.log.Error("No handler registered", "type", msg.Envelope.Type, "id", msg.ID)
		return
	}

	start := time.Now()
	err := w.invoke(ctx, handler, msg)
	w.stats.ObserveLatency(time.Since(start))

	if err == nil {
		msg.Status = domain.StatusDelivered
		w.stats.IncrDelivered()
		return
	}

	// Permission, not-found, and ended-session conditions are explainable
	// to the submitter: surface them on the originating connection, no retry.
	if stderrors.Is(err, errors.ErrPermissionDenied) || stderrors.Is(err, errors.ErrNotFound) || stderrors.Is(err, errors.ErrSessionEnded) {
		msg.Status = domain.StatusRejected
		w.stats.IncrRejected()
		if uniErr := w.registry.Unicast(ctx, msg.ConnID, event.Error(msg.Envelope.Type, msg.SessionID, err.Error())); uniErr != nil {
			w.log.Debug("Origin connection gone, error event dropped", "id", msg.ID)
		}
		return
	}

	w.log.Warn("Handler failed, scheduling retry", "type", msg.Envelope.Type, "id", msg.ID, "error", err)
	select {
	case w.retries <- msg:
	default:
		msg.Status = domain.StatusFailed
		w.stats.IncrFailed()
		w.log.Error("Retry channel full, dropping message", "id", msg.ID)
	}
}

// invoke shields the lane from a panicking handler: the panic becomes a
// transient error and flows through the normal retry path.
func (w *LaneWorker) invoke(ctx context.Context, handler contract.Handler, msg *domain.QueuedMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return handler.Handle(ctx, msg)
}

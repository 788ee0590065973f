package workers

import (
	"context"
	"log/slog"
	"time"

	"voicehub/contract"
	"voicehub/domain"
	"voicehub/observability"
)

var _ contract.Worker = (*RetrySupervisor)(nil)

// RetrySupervisor re-submits failed deliveries with exponential backoff:
// the n-th retry waits backoffBase * 2^(n-1). A message whose retry count
// reaches its ceiling, or whose TTL would pass before the backoff elapses,
// is dropped as failed/expired — the original submitter already got an
// "accepted" answer at admission, so failures surface only in statistics.
type RetrySupervisor struct {
	log         *slog.Logger
	backoffBase time.Duration
	retries     <-chan *domain.QueuedMessage
	lanes       []chan *domain.QueuedMessage
	stats       *observability.StatsManager
}

func NewRetrySupervisor(
	log *slog.Logger,
	backoffBase time.Duration,
	retries <-chan *domain.QueuedMessage,
	lanes []chan *domain.QueuedMessage,
	stats *observability.StatsManager,
) *RetrySupervisor {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &RetrySupervisor{
		log:         log,
		backoffBase: backoffBase,
		retries:     retries,
		lanes:       lanes,
		stats:       stats,
	}
}

func (w *RetrySupervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping retry supervisor")
			return ctx.Err()
		case msg, ok := <-w.retries:
			if !ok {
				return nil
			}
			w.schedule(ctx, msg)
		}
	}
}

func (w *RetrySupervisor) schedule(ctx context.Context, msg *domain.QueuedMessage) {
	msg.RetryCount++

	if msg.RetryCount >= msg.MaxRetries {
		msg.Status = domain.StatusFailed
		w.stats.IncrFailed()
		w.log.Warn("Retries exhausted, dropping message",
			"id", msg.ID, "type", msg.Envelope.Type, "retries", msg.RetryCount)
		return
	}

	delay := w.backoffBase << (msg.RetryCount - 1)
	if !msg.ExpiresAt.IsZero() && time.Now().Add(delay).After(msg.ExpiresAt) {
		msg.Status = domain.StatusExpired
		w.stats.IncrExpired()
		w.log.Debug("Message would expire during backoff, dropping", "id", msg.ID)
		return
	}

	w.stats.IncrRetried()
	lane := w.lanes[msg.Priority]

	// The timer suspends only this message, never the supervisor loop.
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			w.log.Debug("Shutdown before re-enqueue, dropping", "id", msg.ID)
			return
		}
		msg.Status = domain.StatusPending
		select {
		case lane <- msg:
		default:
			msg.Status = domain.StatusFailed
			w.stats.IncrFailed()
			w.log.Error("Lane full on re-enqueue, dropping message", "id", msg.ID)
		}
	})
}
